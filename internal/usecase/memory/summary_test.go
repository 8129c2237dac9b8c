package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

type summaryFixture struct {
	composer  *SummaryComposer
	summaries *fakeSummaryRepo
	jobs      *fakeJobRepo
	llm       *fakeLLM
}

func newSummaryFixture(cfg config.RAGConfig) *summaryFixture {
	summaries := newFakeSummaryRepo()
	jobs := newFakeJobRepo()
	llm := &fakeLLM{}
	queue := NewEmbeddingQueue(jobs, newFakeChunkRepo(), summaries, newFakeEmbedder(4), cfg, nil)
	return &summaryFixture{
		composer:  NewSummaryComposer(summaries, queue, llm, cfg, nil),
		summaries: summaries,
		jobs:      jobs,
		llm:       llm,
	}
}

func testChunks(meetingID uuid.UUID, n int) []entities.Chunk {
	chunks := make([]entities.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, *entities.NewChunk(meetingID, i, nil, int64(i*1000), int64(i*1000+500), "Me: some discussion", 4))
	}
	return chunks
}

func TestSummaryRecomputesOnCadence(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(testRAGConfig()) // every 2 chunks
	meetingID := uuid.New()
	f.llm.summary = "Planning discussion."
	f.llm.keyPoints = []string{"ship on friday"}

	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 2), false); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	stored, _ := f.summaries.GetByMeeting(ctx, meetingID)
	if stored == nil {
		t.Fatal("expected a summary stored")
	}
	if stored.SummaryText != "Planning discussion." {
		t.Errorf("unexpected summary text %q", stored.SummaryText)
	}
	if stored.ChunksSeen != 2 {
		t.Errorf("expected chunks_seen 2, got %d", stored.ChunksSeen)
	}
	if len(stored.KeyPoints) != 1 || stored.KeyPoints[0] != "ship on friday" {
		t.Errorf("unexpected key points %v", stored.KeyPoints)
	}
	if job := f.jobs.byTarget(stored.ID); job == nil || job.TargetKind != entities.EmbeddingTargetSummary {
		t.Error("expected a summary embedding job enqueued")
	}
}

func TestSummarySkipsBelowCadence(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(testRAGConfig())
	meetingID := uuid.New()

	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 1), false); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if stored, _ := f.summaries.GetByMeeting(ctx, meetingID); stored != nil {
		t.Error("expected no summary below the cadence")
	}

	// An existing summary resets the counter: 3 total with 2 already seen
	// is still below the cadence.
	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 2), false); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 3), false); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	stored, _ := f.summaries.GetByMeeting(ctx, meetingID)
	if stored.ChunksSeen != 2 {
		t.Errorf("expected the third chunk not to trigger a recompute, chunks_seen %d", stored.ChunksSeen)
	}
}

func TestSummaryForceOverridesCadence(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(testRAGConfig())
	meetingID := uuid.New()

	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 1), true); err != nil {
		t.Fatalf("forced recompute: %v", err)
	}
	if stored, _ := f.summaries.GetByMeeting(ctx, meetingID); stored == nil {
		t.Error("expected force to bypass the cadence check")
	}
}

func TestSummaryNoChunksIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(testRAGConfig())
	meetingID := uuid.New()

	if err := f.composer.MaybeRecompute(ctx, meetingID, nil, true); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if stored, _ := f.summaries.GetByMeeting(ctx, meetingID); stored != nil {
		t.Error("expected no summary for an empty meeting")
	}
}

func TestSummaryFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(testRAGConfig())
	meetingID := uuid.New()
	f.llm.summary = "First pass."

	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 2), false); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	f.llm.summaryErr = errors.New("summarizer down")
	err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 4), false)
	if err == nil {
		t.Fatal("expected the failed recompute reported")
	}

	stored, _ := f.summaries.GetByMeeting(ctx, meetingID)
	if stored.SummaryText != "First pass." {
		t.Errorf("expected the previous summary kept, got %q", stored.SummaryText)
	}
	if stored.ChunksSeen != 2 {
		t.Errorf("expected chunks_seen unchanged at 2, got %d", stored.ChunksSeen)
	}
}

func TestSummaryRowIsStableAcrossRecomputes(t *testing.T) {
	ctx := context.Background()
	f := newSummaryFixture(testRAGConfig())
	meetingID := uuid.New()
	f.llm.summary = "First pass."

	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 2), false); err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	first, _ := f.summaries.GetByMeeting(ctx, meetingID)

	f.llm.summary = "Second pass."
	if err := f.composer.MaybeRecompute(ctx, meetingID, testChunks(meetingID, 4), false); err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	second, _ := f.summaries.GetByMeeting(ctx, meetingID)

	if second.ID != first.ID {
		t.Error("expected the summary row id stable across recomputes")
	}
	if second.SummaryText != "Second pass." {
		t.Errorf("expected the content replaced, got %q", second.SummaryText)
	}
	if second.ChunksSeen != 4 {
		t.Errorf("expected chunks_seen advanced to 4, got %d", second.ChunksSeen)
	}
}
