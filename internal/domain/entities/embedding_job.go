package entities

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingJobStatus represents the status of an embedding job
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusPending    EmbeddingJobStatus = "pending"     // Waiting to be claimed by the drain worker
	EmbeddingJobStatusInProgress EmbeddingJobStatus = "in_progress" // Claimed; embedding call in flight
	EmbeddingJobStatusCompleted  EmbeddingJobStatus = "completed"   // Vector written to the target
	EmbeddingJobStatusFailed     EmbeddingJobStatus = "failed"      // Terminal; retries exhausted or non-retryable
)

// EmbeddingTargetKind identifies what an embedding job computes a vector for
type EmbeddingTargetKind string

const (
	EmbeddingTargetChunk   EmbeddingTargetKind = "chunk"
	EmbeddingTargetSummary EmbeddingTargetKind = "summary"
)

// EmbeddingJob is one durable unit of embedding work. Jobs reference their
// target by identity, not ownership: a job whose target was deleted is a
// no-op on drain, not an error. Jobs are never deleted automatically;
// terminally failed jobs stay visible for diagnostics.
type EmbeddingJob struct {
	ID         uuid.UUID           `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID  uuid.UUID           `json:"meeting_id" gorm:"type:uuid;not null;index"`
	TargetKind EmbeddingTargetKind `json:"target_kind" gorm:"type:varchar(20);not null;index:idx_jobs_target"`
	TargetID   uuid.UUID           `json:"target_id" gorm:"type:uuid;not null;index:idx_jobs_target"`
	Status     EmbeddingJobStatus  `json:"status" gorm:"type:varchar(20);not null;index;default:'pending'"`

	RetryCount    int        `json:"retry_count" gorm:"type:integer;default:0"`
	MaxRetries    int        `json:"max_retries" gorm:"type:integer;default:5"`
	LastError     *string    `json:"last_error,omitempty" gorm:"type:text"`
	NextAttemptAt time.Time  `json:"next_attempt_at" gorm:"not null;index"` // backoff gate; pending jobs are not claimable before this
	StartedAt     *time.Time `json:"started_at,omitempty" gorm:"type:timestamp"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" gorm:"type:timestamp"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (EmbeddingJob) TableName() string {
	return "embedding_jobs"
}

// NewEmbeddingJob creates a new pending embedding job
func NewEmbeddingJob(meetingID uuid.UUID, kind EmbeddingTargetKind, targetID uuid.UUID, maxRetries int) *EmbeddingJob {
	now := time.Now()
	return &EmbeddingJob{
		ID:            uuid.New(),
		MeetingID:     meetingID,
		TargetKind:    kind,
		TargetID:      targetID,
		Status:        EmbeddingJobStatusPending,
		RetryCount:    0,
		MaxRetries:    maxRetries,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsRetryable checks if a failed attempt should be rescheduled
func (j *EmbeddingJob) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// MarkInProgress marks the job as claimed by a worker
func (j *EmbeddingJob) MarkInProgress() {
	now := time.Now()
	j.Status = EmbeddingJobStatusInProgress
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed successfully
func (j *EmbeddingJob) MarkCompleted() {
	now := time.Now()
	j.Status = EmbeddingJobStatusCompleted
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkRetry increments the retry count and reschedules the job with the
// given backoff delay. The caller must have checked IsRetryable first.
func (j *EmbeddingJob) MarkRetry(errMsg string, backoff time.Duration) {
	now := time.Now()
	j.RetryCount++
	j.Status = EmbeddingJobStatusPending
	j.LastError = &errMsg
	j.NextAttemptAt = now.Add(backoff)
	j.UpdatedAt = now
}

// MarkFailed marks the job as terminally failed
func (j *EmbeddingJob) MarkFailed(errMsg string) {
	now := time.Now()
	j.Status = EmbeddingJobStatusFailed
	j.LastError = &errMsg
	j.ProcessedAt = &now
	j.UpdatedAt = now
}
