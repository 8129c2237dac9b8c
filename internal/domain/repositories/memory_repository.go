package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

// UtteranceRepository persists raw transcript utterances. The context-window
// fallback reads from here, so writes on the ingestion path must never depend
// on the embedding pipeline.
type UtteranceRepository interface {
	Create(ctx context.Context, u *entities.Utterance) error
	// ListRecent returns up to limit utterances ordered by timestamp
	// ascending (the most recent `limit`, oldest first).
	ListRecent(ctx context.Context, meetingID uuid.UUID, limit int) ([]entities.Utterance, error)
	CountByMeeting(ctx context.Context, meetingID uuid.UUID) (int64, error)
}

// ChunkRepository is the chunk side of the vector store
type ChunkRepository interface {
	Create(ctx context.Context, chunk *entities.Chunk) error
	GetByID(ctx context.Context, chunkID uuid.UUID) (*entities.Chunk, error)
	// UpdateEmbedding attaches the completed embedding vector; the only
	// mutation a chunk sees after creation.
	UpdateEmbedding(ctx context.Context, chunkID uuid.UUID, embedding entities.Vector) error
	// ListOrdered returns all chunks for a meeting ordered by chunk_index.
	ListOrdered(ctx context.Context, meetingID uuid.UUID) ([]entities.Chunk, error)
	// ListEmbedded returns only chunks whose embedding has been written,
	// ordered by chunk_index. This is the retrieval scan set.
	ListEmbedded(ctx context.Context, meetingID uuid.UUID) ([]entities.Chunk, error)
	CountByMeeting(ctx context.Context, meetingID uuid.UUID) (int64, error)
	CountEmbedded(ctx context.Context, meetingID uuid.UUID) (int64, error)
	// NextIndex returns the next dense chunk_index for the meeting.
	NextIndex(ctx context.Context, meetingID uuid.UUID) (int, error)
}

// SummaryRepository is the summary side of the vector store: one live row
// per meeting, replaced on each recompute
type SummaryRepository interface {
	// Upsert replaces the meeting's summary row, resetting its embedding.
	Upsert(ctx context.Context, summary *entities.MeetingSummary) error
	GetByMeeting(ctx context.Context, meetingID uuid.UUID) (*entities.MeetingSummary, error)
	UpdateEmbedding(ctx context.Context, summaryID uuid.UUID, embedding entities.Vector) error
}

// EmbeddingJobRepository drives the durable embedding queue
type EmbeddingJobRepository interface {
	Create(ctx context.Context, job *entities.EmbeddingJob) error
	// ClaimPending atomically selects up to batchSize eligible pending jobs
	// (next_attempt_at in the past, FIFO by created_at) and moves them to
	// in_progress. Concurrent callers never receive the same job, and a
	// target never has more than one job in_progress: duplicate pending
	// jobs for one target collapse to the oldest, and targets with a job
	// already in flight are left for a later batch.
	ClaimPending(ctx context.Context, batchSize int) ([]entities.EmbeddingJob, error)
	// FindPendingByTarget returns the target's pending job, if any.
	FindPendingByTarget(ctx context.Context, kind entities.EmbeddingTargetKind, targetID uuid.UUID) (*entities.EmbeddingJob, error)
	Update(ctx context.Context, job *entities.EmbeddingJob) error
	// ResetStale returns in_progress jobs older than the timeout to pending.
	// Used by the startup recovery pass after a crash mid-drain.
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]entities.EmbeddingJob, error)
	CountByStatus(ctx context.Context, meetingID uuid.UUID, status entities.EmbeddingJobStatus) (int64, error)
}
