package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

// ChunkResponse describes a finalized transcript chunk
type ChunkResponse struct {
	ID         uuid.UUID `json:"id"`
	ChunkIndex int       `json:"chunk_index"`
	Speaker    *string   `json:"speaker,omitempty"`
	StartTS    int64     `json:"start_ts"`
	EndTS      int64     `json:"end_ts"`
	TokenCount int       `json:"token_count"`
	Embedded   bool      `json:"embedded"`
}

// NewChunkResponse maps a chunk entity to its response shape
func NewChunkResponse(chunk entities.Chunk) ChunkResponse {
	var speaker *string
	if chunk.Speaker != nil {
		s := string(*chunk.Speaker)
		speaker = &s
	}
	return ChunkResponse{
		ID:         chunk.ID,
		ChunkIndex: chunk.ChunkIndex,
		Speaker:    speaker,
		StartTS:    chunk.StartTS,
		EndTS:      chunk.EndTS,
		TokenCount: chunk.TokenCount,
		Embedded:   chunk.HasEmbedding(),
	}
}

// AppendUtteranceResponse reports what ingestion did with the utterance
type AppendUtteranceResponse struct {
	FinalizedChunks []ChunkResponse `json:"finalized_chunks"`
}

// SummaryResponse is the meeting's rolling summary
type SummaryResponse struct {
	MeetingID   uuid.UUID `json:"meeting_id"`
	SummaryText string    `json:"summary_text"`
	KeyPoints   []string  `json:"key_points"`
	ChunksSeen  int       `json:"chunks_seen"`
	Embedded    bool      `json:"embedded"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSummaryResponse maps a summary entity to its response shape
func NewSummaryResponse(summary *entities.MeetingSummary) SummaryResponse {
	keyPoints := []string(summary.KeyPoints)
	if keyPoints == nil {
		keyPoints = []string{}
	}
	return SummaryResponse{
		MeetingID:   summary.MeetingID,
		SummaryText: summary.SummaryText,
		KeyPoints:   keyPoints,
		ChunksSeen:  summary.ChunksSeen,
		Embedded:    summary.HasEmbedding(),
		UpdatedAt:   summary.UpdatedAt,
	}
}

// JobResponse describes one embedding job for diagnostics
type JobResponse struct {
	ID          uuid.UUID  `json:"id"`
	TargetKind  string     `json:"target_kind"`
	TargetID    uuid.UUID  `json:"target_id"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   *string    `json:"last_error,omitempty"`
	NextAttempt time.Time  `json:"next_attempt_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewJobResponse maps an embedding job entity to its response shape
func NewJobResponse(job entities.EmbeddingJob) JobResponse {
	return JobResponse{
		ID:          job.ID,
		TargetKind:  string(job.TargetKind),
		TargetID:    job.TargetID,
		Status:      string(job.Status),
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		LastError:   job.LastError,
		NextAttempt: job.NextAttemptAt,
		ProcessedAt: job.ProcessedAt,
		CreatedAt:   job.CreatedAt,
	}
}
