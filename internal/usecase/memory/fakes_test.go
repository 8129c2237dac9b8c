package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	pkgai "github.com/johnquangdev/meeting-memory/pkg/ai"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// testRAGConfig returns the tunables used across usecase tests
func testRAGConfig() config.RAGConfig {
	return config.RAGConfig{
		ChunkTokenCeiling:  50,
		ChunkMaxSpan:       2 * time.Minute,
		ChunkMinTokens:     10,
		SummaryEveryChunks: 2,
		MaxRetries:         5,
		BackoffBase:        time.Millisecond,
		BackoffCap:         10 * time.Millisecond,
		DrainBatch:         10,
		DrainInterval:      time.Second,
		StaleTimeout:       time.Minute,
		TokenBudget:        100,
		RecencyWeight:      0.05,
		SummaryThreshold:   0.55,
		QueryTimeout:       time.Second,
		MinChunksForRAG:    3,
		FallbackWindow:     20,
	}
}

// --- repository fakes ---

type fakeUtteranceRepo struct {
	mu         sync.Mutex
	utterances []entities.Utterance
	failCreate error
}

func (f *fakeUtteranceRepo) Create(_ context.Context, u *entities.Utterance) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utterances = append(f.utterances, *u)
	return nil
}

func (f *fakeUtteranceRepo) ListRecent(_ context.Context, meetingID uuid.UUID, limit int) ([]entities.Utterance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []entities.Utterance
	for _, u := range f.utterances {
		if u.MeetingID == meetingID {
			all = append(all, u)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].TimestampMS < all[j].TimestampMS })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (f *fakeUtteranceRepo) CountByMeeting(_ context.Context, meetingID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.utterances {
		if u.MeetingID == meetingID {
			n++
		}
	}
	return n, nil
}

type fakeChunkRepo struct {
	mu     sync.Mutex
	chunks map[uuid.UUID]*entities.Chunk
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: make(map[uuid.UUID]*entities.Chunk)}
}

func (f *fakeChunkRepo) Create(_ context.Context, chunk *entities.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *chunk
	f.chunks[chunk.ID] = &cp
	return nil
}

func (f *fakeChunkRepo) GetByID(_ context.Context, chunkID uuid.UUID) (*entities.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[chunkID]
	if !ok {
		return nil, nil
	}
	cp := *chunk
	return &cp, nil
}

func (f *fakeChunkRepo) UpdateEmbedding(_ context.Context, chunkID uuid.UUID, embedding entities.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[chunkID]
	if !ok {
		return errors.New("chunk not found")
	}
	chunk.Embedding = embedding
	return nil
}

func (f *fakeChunkRepo) list(meetingID uuid.UUID, embeddedOnly bool) []entities.Chunk {
	var out []entities.Chunk
	for _, c := range f.chunks {
		if c.MeetingID != meetingID {
			continue
		}
		if embeddedOnly && !c.HasEmbedding() {
			continue
		}
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

func (f *fakeChunkRepo) ListOrdered(_ context.Context, meetingID uuid.UUID) ([]entities.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(meetingID, false), nil
}

func (f *fakeChunkRepo) ListEmbedded(_ context.Context, meetingID uuid.UUID) ([]entities.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(meetingID, true), nil
}

func (f *fakeChunkRepo) CountByMeeting(_ context.Context, meetingID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.list(meetingID, false))), nil
}

func (f *fakeChunkRepo) CountEmbedded(_ context.Context, meetingID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.list(meetingID, true))), nil
}

func (f *fakeChunkRepo) NextIndex(_ context.Context, meetingID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.list(meetingID, false)), nil
}

type fakeSummaryRepo struct {
	mu        sync.Mutex
	summaries map[uuid.UUID]*entities.MeetingSummary // keyed by meeting id
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: make(map[uuid.UUID]*entities.MeetingSummary)}
}

func (f *fakeSummaryRepo) Upsert(_ context.Context, summary *entities.MeetingSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *summary
	f.summaries[summary.MeetingID] = &cp
	return nil
}

func (f *fakeSummaryRepo) GetByMeeting(_ context.Context, meetingID uuid.UUID) (*entities.MeetingSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary, ok := f.summaries[meetingID]
	if !ok {
		return nil, nil
	}
	cp := *summary
	return &cp, nil
}

func (f *fakeSummaryRepo) UpdateEmbedding(_ context.Context, summaryID uuid.UUID, embedding entities.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.summaries {
		if s.ID == summaryID {
			s.Embedding = embedding
			return nil
		}
	}
	return errors.New("summary not found")
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entities.EmbeddingJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*entities.EmbeddingJob)}
}

func (f *fakeJobRepo) Create(_ context.Context, job *entities.EmbeddingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobRepo) ClaimPending(_ context.Context, batchSize int) ([]entities.EmbeddingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	busy := make(map[uuid.UUID]bool)
	for _, job := range f.jobs {
		if job.Status == entities.EmbeddingJobStatusInProgress {
			busy[job.TargetID] = true
		}
	}

	now := time.Now()
	var eligible []*entities.EmbeddingJob
	for _, job := range f.jobs {
		if job.Status == entities.EmbeddingJobStatusPending && !job.NextAttemptAt.After(now) {
			eligible = append(eligible, job)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	claimed := make([]entities.EmbeddingJob, 0, len(eligible))
	for _, job := range eligible {
		if len(claimed) == batchSize {
			break
		}
		if busy[job.TargetID] {
			continue
		}
		busy[job.TargetID] = true
		job.MarkInProgress()
		claimed = append(claimed, *job)
	}
	return claimed, nil
}

func (f *fakeJobRepo) FindPendingByTarget(_ context.Context, kind entities.EmbeddingTargetKind, targetID uuid.UUID) (*entities.EmbeddingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *entities.EmbeddingJob
	for _, job := range f.jobs {
		if job.Status != entities.EmbeddingJobStatusPending || job.TargetKind != kind || job.TargetID != targetID {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (f *fakeJobRepo) Update(_ context.Context, job *entities.EmbeddingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobRepo) ResetStale(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, job := range f.jobs {
		if job.Status == entities.EmbeddingJobStatusInProgress && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.Status = entities.EmbeddingJobStatusPending
			job.NextAttemptAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (f *fakeJobRepo) ListByMeeting(_ context.Context, meetingID uuid.UUID) ([]entities.EmbeddingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.EmbeddingJob
	for _, job := range f.jobs {
		if job.MeetingID == meetingID {
			out = append(out, *job)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeJobRepo) CountByStatus(_ context.Context, meetingID uuid.UUID, status entities.EmbeddingJobStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.MeetingID == meetingID && job.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeJobRepo) byTarget(targetID uuid.UUID) *entities.EmbeddingJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.TargetID == targetID {
			cp := *job
			return &cp
		}
	}
	return nil
}

// --- client fakes ---

// fakeEmbedder returns deterministic vectors and can be programmed to fail
type fakeEmbedder struct {
	mu        sync.Mutex
	dimension int
	vectors   map[string]entities.Vector // overrides by exact text
	failures  int                        // remaining transient failures
	dimErr    bool                       // return a DimensionError instead
	calls     int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dimension: dim, vectors: make(map[string]entities.Vector)}
}

func (f *fakeEmbedder) Dimension() int { return f.dimension }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.dimErr {
		return nil, &pkgai.DimensionError{Want: f.dimension, Got: f.dimension - 1}
	}
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("embedding backend unavailable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	// Cheap deterministic vector derived from the text bytes.
	v := make([]float32, f.dimension)
	for i, b := range []byte(text) {
		v[i%f.dimension] += float32(b) / 255
	}
	return v, nil
}

// fakeLLM returns canned summaries and streams a canned answer
type fakeLLM struct {
	mu          sync.Mutex
	summary     string
	keyPoints   []string
	summaryErr  error
	streamErr   error
	lastContext string
	answer      []string
}

func (f *fakeLLM) Stream(_ context.Context, _ string, contextText string, emit func(string)) error {
	f.mu.Lock()
	f.lastContext = contextText
	tokens := f.answer
	err := f.streamErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		tokens = []string{"ok"}
	}
	for _, tok := range tokens {
		emit(tok)
	}
	return nil
}

func (f *fakeLLM) GenerateMeetingSummary(_ context.Context, _ string) (string, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summaryErr != nil {
		return "", nil, f.summaryErr
	}
	if f.summary == "" {
		return "A short meeting.", nil, nil
	}
	return f.summary, f.keyPoints, nil
}
