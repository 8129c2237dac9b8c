package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/internal/domain/repositories"
	pkgai "github.com/johnquangdev/meeting-memory/pkg/ai"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// QueryEmbeddingCache caches query-text embeddings so repeated questions
// skip the backend round trip. A nil cache is valid and means no caching.
type QueryEmbeddingCache interface {
	Get(ctx context.Context, text string) (entities.Vector, bool)
	Set(ctx context.Context, text string, vector entities.Vector)
}

// RankedContext is the token-budgeted retrieval result. Chunks are ordered
// chronologically (start_ts ascending), not by score: downstream prompting
// reads better as a timeline.
type RankedContext struct {
	Summary    *entities.MeetingSummary // non-nil when the summary cleared its threshold
	Chunks     []entities.Chunk
	TokenCount int
}

// PromptText renders the ranked context as prompt input
func (rc *RankedContext) PromptText() string {
	var sb strings.Builder
	if rc.Summary != nil {
		sb.WriteString("Meeting summary: ")
		sb.WriteString(rc.Summary.SummaryText)
		sb.WriteString("\n\n")
	}
	for i, chunk := range rc.Chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(chunk.CleanedText)
	}
	return sb.String()
}

// scoredChunk pairs a chunk with its adjusted relevance score
type scoredChunk struct {
	chunk entities.Chunk
	score float64
}

// RetrievalEngine ranks stored chunks against a query embedding and
// selects a token-budgeted context. Scoring is brute-force cosine over
// the meeting's embedded chunks with a small recency blend so
// near-duplicate similarity favors the freshest mention; the result is
// deterministic for a fixed store snapshot and query.
type RetrievalEngine struct {
	chunkRepo   repositories.ChunkRepository
	summaryRepo repositories.SummaryRepository
	embedder    pkgai.EmbeddingClient
	cache       QueryEmbeddingCache
	cfg         config.RAGConfig
	logger      *zap.Logger
}

// NewRetrievalEngine constructs a new retrieval engine. cache may be nil.
func NewRetrievalEngine(
	chunkRepo repositories.ChunkRepository,
	summaryRepo repositories.SummaryRepository,
	embedder pkgai.EmbeddingClient,
	cache QueryEmbeddingCache,
	cfg config.RAGConfig,
	logger *zap.Logger,
) *RetrievalEngine {
	return &RetrievalEngine{
		chunkRepo:   chunkRepo,
		summaryRepo: summaryRepo,
		embedder:    embedder,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
	}
}

// Retrieve embeds the query, scores the meeting's embedded chunks, and
// packs the best ones into tokenBudget. Returns ErrRetrievalUnavailable
// when the query cannot be embedded or the meeting has no embedded chunks;
// the caller falls back to the raw context window in that case.
func (e *RetrievalEngine) Retrieve(ctx context.Context, meetingID uuid.UUID, queryText string, tokenBudget int) (*RankedContext, error) {
	if tokenBudget <= 0 {
		tokenBudget = e.cfg.TokenBudget
	}

	queryVec, err := e.embedQuery(ctx, queryText)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("query embedding failed, retrieval unavailable",
				zap.String("meeting_id", meetingID.String()),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("%w: %v", entities.ErrRetrievalUnavailable, err)
	}

	chunks, err := e.chunkRepo.ListEmbedded(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no embedded chunks for meeting", entities.ErrRetrievalUnavailable)
	}

	scored := e.scoreChunks(chunks, queryVec)

	// Sort descending by adjusted score; break exact ties on chunk index
	// (higher = fresher) so ordering is never arbitrary.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].chunk.ChunkIndex > scored[j].chunk.ChunkIndex
	})

	// Greedy best-effort packing: skip (don't truncate) any chunk that
	// would overflow the remaining budget and keep trying smaller ones.
	selected := make([]entities.Chunk, 0, len(scored))
	remaining := tokenBudget
	total := 0
	for _, sc := range scored {
		if sc.chunk.TokenCount > remaining {
			continue
		}
		selected = append(selected, sc.chunk)
		remaining -= sc.chunk.TokenCount
		total += sc.chunk.TokenCount
	}

	// Chronological result order.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].StartTS < selected[j].StartTS
	})

	result := &RankedContext{Chunks: selected, TokenCount: total}

	// A broad question ("what was this meeting about") may match the
	// meeting-level summary even when no individual chunk scores highly.
	summary, err := e.summaryRepo.GetByMeeting(ctx, meetingID)
	if err == nil && summary != nil && summary.HasEmbedding() {
		if entities.CosineSimilarity(queryVec, summary.Embedding) >= e.cfg.SummaryThreshold {
			result.Summary = summary
		}
	}

	if e.logger != nil {
		e.logger.Debug("retrieval complete",
			zap.String("meeting_id", meetingID.String()),
			zap.Int("scanned", len(chunks)),
			zap.Int("selected", len(selected)),
			zap.Int("token_count", total),
			zap.Bool("summary_included", result.Summary != nil),
		)
	}
	return result, nil
}

// embedQuery embeds the query text with a bounded timeout, consulting the
// cache first. A slow or down backend times out into the fallback path
// instead of hanging the caller.
func (e *RetrievalEngine) embedQuery(ctx context.Context, queryText string) (entities.Vector, error) {
	if e.cache != nil {
		if vec, ok := e.cache.Get(ctx, queryText); ok {
			return vec, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	var vector []float32
	embedFn := func() error {
		v, err := e.embedder.Embed(ctx, queryText)
		if err != nil {
			return err
		}
		vector = v
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = e.cfg.QueryTimeout

	if err := backoff.Retry(embedFn, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	vec := entities.Vector(vector)
	if e.cache != nil {
		e.cache.Set(ctx, queryText, vec)
	}
	return vec, nil
}

// scoreChunks computes cosine similarity blended with a small recency
// bonus: adjusted = cosine + RecencyWeight * position, where position is
// the chunk's end_ts rank normalized to [0,1]. Rank-based (rather than
// absolute-time) positions keep the blend stable regardless of meeting
// length.
func (e *RetrievalEngine) scoreChunks(chunks []entities.Chunk, queryVec entities.Vector) []scoredChunk {
	// Rank chunks by end timestamp, oldest first.
	byRecency := make([]int, len(chunks))
	for i := range byRecency {
		byRecency[i] = i
	}
	sort.SliceStable(byRecency, func(a, b int) bool {
		if chunks[byRecency[a]].EndTS != chunks[byRecency[b]].EndTS {
			return chunks[byRecency[a]].EndTS < chunks[byRecency[b]].EndTS
		}
		return chunks[byRecency[a]].ChunkIndex < chunks[byRecency[b]].ChunkIndex
	})

	position := make([]float64, len(chunks))
	if len(chunks) > 1 {
		for rank, idx := range byRecency {
			position[idx] = float64(rank) / float64(len(chunks)-1)
		}
	}

	scored := make([]scoredChunk, 0, len(chunks))
	for i, chunk := range chunks {
		if !chunk.HasEmbedding() {
			// A not-yet-completed embedding is excluded, not an error.
			continue
		}
		cos := entities.CosineSimilarity(queryVec, chunk.Embedding)
		scored = append(scored, scoredChunk{
			chunk: chunk,
			score: cos + e.cfg.RecencyWeight*position[i],
		})
	}
	return scored
}
