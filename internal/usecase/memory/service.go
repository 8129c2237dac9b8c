package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/internal/domain/repositories"
	pkgai "github.com/johnquangdev/meeting-memory/pkg/ai"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// Service is the single entry point the rest of the application talks to:
// transcript lifecycle hooks, the query path, and worker control.
type Service interface {
	// OnTranscriptAppend ingests one live utterance and returns any chunks
	// it finalized. Ingestion is lossless and never blocks on embedding.
	OnTranscriptAppend(ctx context.Context, meetingID uuid.UUID, speaker entities.Speaker, text string, timestampMS int64) ([]entities.Chunk, error)

	// OnMeetingEnd flushes the buffered remainder into a final chunk and
	// forces a final summary recompute.
	OnMeetingEnd(ctx context.Context, meetingID uuid.UUID) error

	// QueryMeeting answers a question about the meeting, streaming tokens
	// through emit. Returns whether the context-window fallback was used.
	QueryMeeting(ctx context.Context, meetingID uuid.UUID, question string, emit func(token string)) (usedFallback bool, err error)

	GetSummary(ctx context.Context, meetingID uuid.UUID) (*entities.MeetingSummary, error)
	ListJobs(ctx context.Context, meetingID uuid.UUID) ([]entities.EmbeddingJob, error)

	StartWorker(ctx context.Context) error
	StopWorker() error
}

type memoryService struct {
	utteranceRepo repositories.UtteranceRepository
	chunkRepo     repositories.ChunkRepository
	jobRepo       repositories.EmbeddingJobRepository
	summaryRepo   repositories.SummaryRepository

	queue     *EmbeddingQueue
	composer  *SummaryComposer
	retrieval *RetrievalEngine
	fallback  *FallbackPolicy
	llm       pkgai.LanguageModelClient

	cfg    config.RAGConfig
	logger *zap.Logger

	// Per-meeting chunker state. The map lock only guards lookup; each
	// meeting's ingestion is serialized by its own chunker entry.
	chunkersMu sync.Mutex
	chunkers   map[uuid.UUID]*meetingChunker
}

type meetingChunker struct {
	mu      sync.Mutex
	chunker *Chunker
}

// NewService constructs the meeting memory service
func NewService(
	utteranceRepo repositories.UtteranceRepository,
	chunkRepo repositories.ChunkRepository,
	jobRepo repositories.EmbeddingJobRepository,
	summaryRepo repositories.SummaryRepository,
	queue *EmbeddingQueue,
	composer *SummaryComposer,
	retrieval *RetrievalEngine,
	fallback *FallbackPolicy,
	llm pkgai.LanguageModelClient,
	cfg config.RAGConfig,
	logger *zap.Logger,
) Service {
	return &memoryService{
		utteranceRepo: utteranceRepo,
		chunkRepo:     chunkRepo,
		jobRepo:       jobRepo,
		summaryRepo:   summaryRepo,
		queue:         queue,
		composer:      composer,
		retrieval:     retrieval,
		fallback:      fallback,
		llm:           llm,
		cfg:           cfg,
		logger:        logger,
		chunkers:      make(map[uuid.UUID]*meetingChunker),
	}
}

// chunkerFor returns the meeting's chunker, creating one resumed at the
// next stored chunk index on first use
func (s *memoryService) chunkerFor(ctx context.Context, meetingID uuid.UUID) (*meetingChunker, error) {
	s.chunkersMu.Lock()
	mc, ok := s.chunkers[meetingID]
	if !ok {
		mc = &meetingChunker{}
		s.chunkers[meetingID] = mc
	}
	s.chunkersMu.Unlock()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.chunker == nil {
		next, err := s.chunkRepo.NextIndex(ctx, meetingID)
		if err != nil {
			return nil, fmt.Errorf("failed to resume chunk index: %w", err)
		}
		mc.chunker = NewChunker(meetingID, next, s.cfg, nil)
	}
	return mc, nil
}

// OnTranscriptAppend persists the raw utterance, feeds the chunker, and
// stores plus enqueues any finalized chunks. Embedding-queue failures are
// logged but never fail ingestion.
func (s *memoryService) OnTranscriptAppend(ctx context.Context, meetingID uuid.UUID, speaker entities.Speaker, text string, timestampMS int64) ([]entities.Chunk, error) {
	if !speaker.IsValid() {
		return nil, entities.ErrInvalidSpeaker
	}
	if strings.TrimSpace(text) == "" {
		return nil, entities.ErrEmptyUtterance
	}

	utterance := entities.NewUtterance(meetingID, speaker, text, timestampMS)
	if err := s.utteranceRepo.Create(ctx, utterance); err != nil {
		return nil, fmt.Errorf("failed to store utterance: %w", err)
	}

	mc, err := s.chunkerFor(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	mc.mu.Lock()
	finalized := mc.chunker.Append(*utterance)
	mc.mu.Unlock()

	stored, err := s.storeChunks(ctx, meetingID, finalized)
	if err != nil {
		return stored, err
	}

	if len(stored) > 0 {
		s.maybeRecomputeSummary(ctx, meetingID, false)
	}
	return stored, nil
}

// OnMeetingEnd flushes any buffered remainder and forces a final summary
// recompute
func (s *memoryService) OnMeetingEnd(ctx context.Context, meetingID uuid.UUID) error {
	mc, err := s.chunkerFor(ctx, meetingID)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	final := mc.chunker.Flush()
	mc.mu.Unlock()

	var flushed []*entities.Chunk
	if final != nil {
		flushed = append(flushed, final)
	}
	if _, err := s.storeChunks(ctx, meetingID, flushed); err != nil {
		return err
	}

	s.maybeRecomputeSummary(ctx, meetingID, true)

	s.chunkersMu.Lock()
	delete(s.chunkers, meetingID)
	s.chunkersMu.Unlock()

	if s.logger != nil {
		s.logger.Info("meeting ended",
			zap.String("meeting_id", meetingID.String()),
			zap.Bool("final_chunk", final != nil),
		)
	}
	return nil
}

// storeChunks persists finalized chunks and enqueues their embedding jobs
func (s *memoryService) storeChunks(ctx context.Context, meetingID uuid.UUID, chunks []*entities.Chunk) ([]entities.Chunk, error) {
	stored := make([]entities.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if err := s.chunkRepo.Create(ctx, chunk); err != nil {
			return stored, fmt.Errorf("failed to store chunk %d: %w", chunk.ChunkIndex, err)
		}
		stored = append(stored, *chunk)

		if err := s.queue.Enqueue(ctx, meetingID, entities.EmbeddingTargetChunk, chunk.ID); err != nil && s.logger != nil {
			// The chunk is durable; a missed job only delays searchability
			// and must not fail the ingestion path.
			s.logger.Error("failed to enqueue chunk embedding",
				zap.String("chunk_id", chunk.ID.String()),
				zap.Error(err),
			)
		}
	}
	return stored, nil
}

// maybeRecomputeSummary runs the summary cadence check; failures keep the
// previous summary and are logged, never propagated
func (s *memoryService) maybeRecomputeSummary(ctx context.Context, meetingID uuid.UUID, force bool) {
	chunks, err := s.chunkRepo.ListOrdered(ctx, meetingID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to list chunks for summary", zap.Error(err))
		}
		return
	}
	if err := s.composer.MaybeRecompute(ctx, meetingID, chunks, force); err != nil && s.logger != nil {
		s.logger.Warn("summary recompute skipped",
			zap.String("meeting_id", meetingID.String()),
			zap.Error(err),
		)
	}
}

// QueryMeeting runs the fallback decision, retrieves or builds context,
// and streams the answer. The user-visible failure mode is degraded
// relevance; a hard error surfaces only when the language model itself
// is unreachable on the fallback path too.
func (s *memoryService) QueryMeeting(ctx context.Context, meetingID uuid.UUID, question string, emit func(token string)) (bool, error) {
	if strings.TrimSpace(question) == "" {
		return false, entities.ErrInvalidRequest
	}

	usedFallback := s.fallback.SelectStrategy(ctx, meetingID) == StrategyContextWindow
	var contextText string

	if !usedFallback {
		ranked, err := s.retrieval.Retrieve(ctx, meetingID, question, s.cfg.TokenBudget)
		switch {
		case err == nil && (len(ranked.Chunks) > 0 || ranked.Summary != nil):
			contextText = ranked.PromptText()
		case err != nil && !errors.Is(err, entities.ErrRetrievalUnavailable):
			// Store errors on the query path also degrade to the window
			// rather than failing the question.
			if s.logger != nil {
				s.logger.Error("retrieval failed, falling back", zap.Error(err))
			}
			usedFallback = true
		default:
			usedFallback = true
		}
	}

	if usedFallback {
		contextText = s.fallback.ContextWindow(ctx, meetingID)
	}

	if err := s.llm.Stream(ctx, question, contextText, emit); err != nil {
		return usedFallback, fmt.Errorf("couldn't get a response: %w", err)
	}
	return usedFallback, nil
}

// GetSummary returns the meeting's current rolling summary
func (s *memoryService) GetSummary(ctx context.Context, meetingID uuid.UUID) (*entities.MeetingSummary, error) {
	return s.summaryRepo.GetByMeeting(ctx, meetingID)
}

// ListJobs returns the meeting's embedding jobs for diagnostics
func (s *memoryService) ListJobs(ctx context.Context, meetingID uuid.UUID) ([]entities.EmbeddingJob, error) {
	return s.jobRepo.ListByMeeting(ctx, meetingID)
}

// StartWorker starts the background embedding drain loop
func (s *memoryService) StartWorker(ctx context.Context) error {
	return s.queue.StartWorker(ctx)
}

// StopWorker stops the background embedding drain loop
func (s *memoryService) StopWorker() error {
	return s.queue.StopWorker()
}
