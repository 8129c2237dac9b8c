package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/internal/domain/repositories"
	pkgai "github.com/johnquangdev/meeting-memory/pkg/ai"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// SummaryComposer maintains the single rolling meeting-level summary.
// Recomputation runs on a chunk-count cadence rather than per chunk,
// since summarization is comparatively expensive. A failed recompute
// leaves the previous summary and embedding intact; the summary never
// regresses to empty.
type SummaryComposer struct {
	summaryRepo repositories.SummaryRepository
	queue       *EmbeddingQueue
	llm         pkgai.LanguageModelClient
	cfg         config.RAGConfig
	logger      *zap.Logger
}

// NewSummaryComposer constructs a new summary composer
func NewSummaryComposer(
	summaryRepo repositories.SummaryRepository,
	queue *EmbeddingQueue,
	llm pkgai.LanguageModelClient,
	cfg config.RAGConfig,
	logger *zap.Logger,
) *SummaryComposer {
	return &SummaryComposer{
		summaryRepo: summaryRepo,
		queue:       queue,
		llm:         llm,
		cfg:         cfg,
		logger:      logger,
	}
}

// MaybeRecompute recomputes the summary when enough new chunks have
// accumulated since the last recompute. force skips the cadence check
// (used at meeting end).
func (sc *SummaryComposer) MaybeRecompute(ctx context.Context, meetingID uuid.UUID, chunks []entities.Chunk, force bool) error {
	if len(chunks) == 0 {
		return nil
	}

	existing, err := sc.summaryRepo.GetByMeeting(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("failed to load summary: %w", err)
	}

	if !force {
		seen := 0
		if existing != nil {
			seen = existing.ChunksSeen
		}
		if len(chunks)-seen < sc.cfg.SummaryEveryChunks {
			return nil
		}
	}

	return sc.recompute(ctx, meetingID, existing, chunks)
}

// recompute asks the LLM for a fresh summary over all chunks seen so far,
// replaces the stored row, and enqueues a new embedding job for it
func (sc *SummaryComposer) recompute(ctx context.Context, meetingID uuid.UUID, existing *entities.MeetingSummary, chunks []entities.Chunk) error {
	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(chunk.CleanedText)
	}

	summaryText, keyPoints, err := sc.llm.GenerateMeetingSummary(ctx, sb.String())
	if err != nil {
		// Keep the previous summary; a summarizer outage must not erase
		// what we already have. The caller logs the returned error.
		return fmt.Errorf("failed to recompute summary: %w", err)
	}
	if strings.TrimSpace(summaryText) == "" {
		return entities.ErrEmptySummary
	}

	summary := entities.NewMeetingSummary(meetingID, summaryText, keyPoints, len(chunks))
	if existing != nil {
		// The row is stable across recomputes; only its content turns over.
		summary.ID = existing.ID
		summary.CreatedAt = existing.CreatedAt
	}
	if keyPoints == nil {
		summary.KeyPoints = datatypes.NewJSONSlice([]string{})
	}

	if err := sc.summaryRepo.Upsert(ctx, summary); err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}

	// The new text invalidates the prior embedding; queue a fresh job.
	if err := sc.queue.Enqueue(ctx, meetingID, entities.EmbeddingTargetSummary, summary.ID); err != nil {
		return err
	}

	if sc.logger != nil {
		sc.logger.Info("meeting summary recomputed",
			zap.String("meeting_id", meetingID.String()),
			zap.Int("chunks_seen", len(chunks)),
			zap.Int("key_points", len(keyPoints)),
		)
	}
	return nil
}
