package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-memory/internal/domain/repositories"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// Strategy selects how a query is answered
type Strategy string

const (
	StrategyRAG           Strategy = "rag"            // Embedding-based retrieval
	StrategyContextWindow Strategy = "context_window" // Raw recent utterances
)

// FallbackPolicy decides, per query, whether retrieval is worth attempting
// and builds the raw context window when it is not. The context-window
// path is the correctness backstop: it never depends on embeddings and
// always produces some answerable context.
type FallbackPolicy struct {
	chunkRepo     repositories.ChunkRepository
	utteranceRepo repositories.UtteranceRepository
	summaryRepo   repositories.SummaryRepository
	cfg           config.RAGConfig
	logger        *zap.Logger
}

// NewFallbackPolicy constructs a new fallback policy
func NewFallbackPolicy(
	chunkRepo repositories.ChunkRepository,
	utteranceRepo repositories.UtteranceRepository,
	summaryRepo repositories.SummaryRepository,
	cfg config.RAGConfig,
	logger *zap.Logger,
) *FallbackPolicy {
	return &FallbackPolicy{
		chunkRepo:     chunkRepo,
		utteranceRepo: utteranceRepo,
		summaryRepo:   summaryRepo,
		cfg:           cfg,
		logger:        logger,
	}
}

// SelectStrategy chooses ContextWindow when the meeting has no completed
// chunk embeddings or is too short for chunking overhead to pay off.
// Store errors also select ContextWindow: the cheap pre-check must never
// block answering. A later RetrievalUnavailable from an attempted
// retrieve is the second trigger point, handled by the caller.
func (p *FallbackPolicy) SelectStrategy(ctx context.Context, meetingID uuid.UUID) Strategy {
	total, err := p.chunkRepo.CountByMeeting(ctx, meetingID)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("chunk count failed, using context window", zap.Error(err))
		}
		return StrategyContextWindow
	}
	if total < int64(p.cfg.MinChunksForRAG) {
		return StrategyContextWindow
	}

	embedded, err := p.chunkRepo.CountEmbedded(ctx, meetingID)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("embedded count failed, using context window", zap.Error(err))
		}
		return StrategyContextWindow
	}
	if embedded == 0 {
		return StrategyContextWindow
	}

	return StrategyRAG
}

// ContextWindow builds the raw fallback context: the last K utterances
// plus any existing summary and key points. Missing embeddings, an empty
// summary, or even an empty transcript never fail this path.
func (p *FallbackPolicy) ContextWindow(ctx context.Context, meetingID uuid.UUID) string {
	var sb strings.Builder

	if summary, err := p.summaryRepo.GetByMeeting(ctx, meetingID); err == nil && summary != nil {
		sb.WriteString("Meeting summary: ")
		sb.WriteString(summary.SummaryText)
		sb.WriteByte('\n')
		for _, point := range summary.KeyPoints {
			sb.WriteString("- ")
			sb.WriteString(point)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	utterances, err := p.utteranceRepo.ListRecent(ctx, meetingID, p.cfg.FallbackWindow)
	if err != nil && p.logger != nil {
		p.logger.Warn("failed to load recent utterances for fallback", zap.Error(err))
	}
	if len(utterances) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, u := range utterances {
			sb.WriteString(u.Speaker.Label())
			sb.WriteByte(' ')
			sb.WriteString(u.Text)
			sb.WriteByte('\n')
		}
	}

	if sb.Len() == 0 {
		return "(no transcript has been captured for this meeting yet)"
	}
	return sb.String()
}
