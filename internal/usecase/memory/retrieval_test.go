package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

type fakeQueryCache struct {
	mu      sync.Mutex
	entries map[string]entities.Vector
}

func newFakeQueryCache() *fakeQueryCache {
	return &fakeQueryCache{entries: make(map[string]entities.Vector)}
}

func (c *fakeQueryCache) Get(_ context.Context, text string) (entities.Vector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[text]
	return v, ok
}

func (c *fakeQueryCache) Set(_ context.Context, text string, vector entities.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[text] = vector
}

type retrievalFixture struct {
	engine    *RetrievalEngine
	chunks    *fakeChunkRepo
	summaries *fakeSummaryRepo
	embedder  *fakeEmbedder
	cache     *fakeQueryCache
}

func newRetrievalFixture(cfg config.RAGConfig) *retrievalFixture {
	chunks := newFakeChunkRepo()
	summaries := newFakeSummaryRepo()
	embedder := newFakeEmbedder(4)
	cache := newFakeQueryCache()
	return &retrievalFixture{
		engine:    NewRetrievalEngine(chunks, summaries, embedder, cache, cfg, nil),
		chunks:    chunks,
		summaries: summaries,
		embedder:  embedder,
		cache:     cache,
	}
}

// seedEmbeddedChunk stores a chunk whose embedding is set directly
func (f *retrievalFixture) seedEmbeddedChunk(t *testing.T, meetingID uuid.UUID, index int, endTS int64, tokens int, embedding entities.Vector) *entities.Chunk {
	t.Helper()
	chunk := entities.NewChunk(meetingID, index, nil, endTS-500, endTS, "Them: chunk "+string(rune('a'+index)), tokens)
	chunk.Embedding = embedding
	if err := f.chunks.Create(context.Background(), chunk); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
	return chunk
}

func TestRetrieveRanksByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	cfg := testRAGConfig()
	cfg.RecencyWeight = 0
	f := newRetrievalFixture(cfg)
	meetingID := uuid.New()

	f.embedder.vectors["deployment schedule"] = entities.Vector{1, 0, 0, 0}
	match := f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, entities.Vector{1, 0, 0, 0})
	f.seedEmbeddedChunk(t, meetingID, 1, 2000, 10, entities.Vector{0, 1, 0, 0})
	f.seedEmbeddedChunk(t, meetingID, 2, 3000, 10, entities.Vector{0, 0, 1, 0})

	// A budget of one chunk keeps only the best match.
	result, err := f.engine.Retrieve(ctx, meetingID, "deployment schedule", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected 1 chunk within budget, got %d", len(result.Chunks))
	}
	if result.Chunks[0].ID != match.ID {
		t.Errorf("expected the cosine-closest chunk selected")
	}
	if result.TokenCount != 10 {
		t.Errorf("expected token count 10, got %d", result.TokenCount)
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(testRAGConfig())
	meetingID := uuid.New()

	f.embedder.vectors["q"] = entities.Vector{1, 1, 0, 0}
	for i := 0; i < 5; i++ {
		f.seedEmbeddedChunk(t, meetingID, i, int64((i+1)*1000), 20, entities.Vector{float32(i + 1), 1, 0, 0})
	}

	first, err := f.engine.Retrieve(ctx, meetingID, "q", 100)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for run := 0; run < 3; run++ {
		again, err := f.engine.Retrieve(ctx, meetingID, "q", 100)
		if err != nil {
			t.Fatalf("retrieve run %d: %v", run, err)
		}
		if len(again.Chunks) != len(first.Chunks) {
			t.Fatalf("run %d: selection size changed: %d vs %d", run, len(again.Chunks), len(first.Chunks))
		}
		for i := range first.Chunks {
			if again.Chunks[i].ID != first.Chunks[i].ID {
				t.Fatalf("run %d: selection order changed at %d", run, i)
			}
		}
	}
}

func TestRetrieveRecencyBreaksNearTies(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(testRAGConfig())
	meetingID := uuid.New()

	// Identical embeddings: cosine ties exactly, so only the recency blend
	// separates the early and the late mention.
	same := entities.Vector{1, 0, 0, 0}
	f.embedder.vectors["q"] = same
	f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, same)
	late := f.seedEmbeddedChunk(t, meetingID, 1, 60000, 10, same)

	result, err := f.engine.Retrieve(ctx, meetingID, "q", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].ID != late.ID {
		t.Errorf("expected the fresher duplicate to win the budget slot")
	}
}

func TestRetrieveExactTieFavorsHigherIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testRAGConfig()
	cfg.RecencyWeight = 0 // force an exact score tie
	f := newRetrievalFixture(cfg)
	meetingID := uuid.New()

	same := entities.Vector{0, 1, 0, 0}
	f.embedder.vectors["q"] = same
	f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, same)
	later := f.seedEmbeddedChunk(t, meetingID, 1, 2000, 10, same)

	result, err := f.engine.Retrieve(ctx, meetingID, "q", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].ID != later.ID {
		t.Errorf("expected the higher chunk index to win an exact tie")
	}
}

func TestRetrieveBudgetSkipsNotTruncates(t *testing.T) {
	ctx := context.Background()
	cfg := testRAGConfig()
	cfg.RecencyWeight = 0
	f := newRetrievalFixture(cfg)
	meetingID := uuid.New()

	f.embedder.vectors["q"] = entities.Vector{1, 0, 0, 0}
	best := f.seedEmbeddedChunk(t, meetingID, 0, 1000, 60, entities.Vector{1, 0, 0, 0})
	// Second-best but too big for the remaining 40 tokens; must be skipped
	// whole, never truncated.
	f.seedEmbeddedChunk(t, meetingID, 1, 2000, 80, entities.Vector{0.9, 0.1, 0, 0})
	third := f.seedEmbeddedChunk(t, meetingID, 2, 3000, 30, entities.Vector{0.8, 0.2, 0, 0})

	result, err := f.engine.Retrieve(ctx, meetingID, "q", 100)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 chunks packed, got %d", len(result.Chunks))
	}
	if result.TokenCount != 90 {
		t.Errorf("expected packed total 90, got %d", result.TokenCount)
	}
	got := map[uuid.UUID]bool{result.Chunks[0].ID: true, result.Chunks[1].ID: true}
	if !got[best.ID] || !got[third.ID] {
		t.Error("expected the oversized middle chunk skipped in favor of the smaller one")
	}
}

func TestRetrieveResultsAreChronological(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(testRAGConfig())
	meetingID := uuid.New()

	f.embedder.vectors["q"] = entities.Vector{1, 1, 1, 0}
	f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, entities.Vector{0.2, 0.2, 0.2, 0})
	f.seedEmbeddedChunk(t, meetingID, 1, 2000, 10, entities.Vector{1, 1, 1, 0})
	f.seedEmbeddedChunk(t, meetingID, 2, 3000, 10, entities.Vector{0.5, 0.5, 0.5, 0})

	result, err := f.engine.Retrieve(ctx, meetingID, "q", 100)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for i := 1; i < len(result.Chunks); i++ {
		if result.Chunks[i-1].StartTS > result.Chunks[i].StartTS {
			t.Fatal("expected chunks ordered by start timestamp")
		}
	}
}

func TestRetrieveUnavailableWithoutEmbeddedChunks(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(testRAGConfig())
	meetingID := uuid.New()

	// A stored chunk whose embedding job hasn't completed yet.
	chunk := entities.NewChunk(meetingID, 0, nil, 0, 500, "Me: pending", 3)
	if err := f.chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := f.engine.Retrieve(ctx, meetingID, "anything", 100)
	if !errors.Is(err, entities.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieveUnavailableWhenEmbedderDown(t *testing.T) {
	ctx := context.Background()
	cfg := testRAGConfig()
	cfg.QueryTimeout = 20 * time.Millisecond
	f := newRetrievalFixture(cfg)
	f.embedder.failures = 1 << 20
	meetingID := uuid.New()

	f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, entities.Vector{1, 0, 0, 0})

	_, err := f.engine.Retrieve(ctx, meetingID, "q", 100)
	if !errors.Is(err, entities.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieveUsesQueryCache(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(testRAGConfig())
	meetingID := uuid.New()

	f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, entities.Vector{1, 0, 0, 0})

	if _, err := f.engine.Retrieve(ctx, meetingID, "repeated question", 100); err != nil {
		t.Fatalf("first retrieve: %v", err)
	}
	if _, err := f.engine.Retrieve(ctx, meetingID, "repeated question", 100); err != nil {
		t.Fatalf("second retrieve: %v", err)
	}
	if f.embedder.calls != 1 {
		t.Errorf("expected the cached embedding reused, embedder called %d times", f.embedder.calls)
	}
}

func TestRetrieveIncludesSummaryAboveThreshold(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(testRAGConfig())
	meetingID := uuid.New()

	query := entities.Vector{1, 0, 0, 0}
	f.embedder.vectors["what was this meeting about"] = query
	f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, entities.Vector{0, 1, 0, 0})

	summary := entities.NewMeetingSummary(meetingID, "roadmap planning for next quarter", nil, 1)
	summary.Embedding = entities.Vector{1, 0.1, 0, 0} // cosine well above 0.55
	if err := f.summaries.Upsert(ctx, summary); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	result, err := f.engine.Retrieve(ctx, meetingID, "what was this meeting about", 100)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if result.Summary == nil {
		t.Fatal("expected the summary included above its threshold")
	}
	if !strings.Contains(result.PromptText(), "roadmap planning") {
		t.Error("expected the prompt text to lead with the summary")
	}
}

func TestRetrieveOmitsSummaryBelowThreshold(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(testRAGConfig())
	meetingID := uuid.New()

	f.embedder.vectors["q"] = entities.Vector{1, 0, 0, 0}
	f.seedEmbeddedChunk(t, meetingID, 0, 1000, 10, entities.Vector{1, 0, 0, 0})

	summary := entities.NewMeetingSummary(meetingID, "unrelated", nil, 1)
	summary.Embedding = entities.Vector{0, 0, 1, 0} // orthogonal to the query
	if err := f.summaries.Upsert(ctx, summary); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	result, err := f.engine.Retrieve(ctx, meetingID, "q", 100)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if result.Summary != nil {
		t.Error("expected the summary excluded below its threshold")
	}
}
