package jobcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type KeyContext string

var (
	keyJobID        KeyContext = "job_id"
	keyTargetKind   KeyContext = "target_kind"
	keyRetryAttempt KeyContext = "retry_attempt"
	keyJobStartTime KeyContext = "job_start_time"
)

// defaultJobTimeout bounds a single embedding job so a hung backend call
// never wedges the drain loop.
const defaultJobTimeout = 2 * time.Minute

// JobBegin derives a bounded context for one embedding job and tags it
// with job metadata for log correlation across the claim/embed/write steps.
func JobBegin(parentCtx context.Context, jobID uuid.UUID, targetKind string, retryAttempt int) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parentCtx, defaultJobTimeout)

	ctx = context.WithValue(ctx, keyJobID, jobID)
	ctx = context.WithValue(ctx, keyTargetKind, targetKind)
	ctx = context.WithValue(ctx, keyRetryAttempt, retryAttempt)
	ctx = context.WithValue(ctx, keyJobStartTime, time.Now())

	return ctx, cancel
}

// GetJobID extracts the job ID from context
func GetJobID(ctx context.Context) (uuid.UUID, bool) {
	jobID, ok := ctx.Value(keyJobID).(uuid.UUID)
	return jobID, ok
}

// GetTargetKind extracts the job's target kind from context
func GetTargetKind(ctx context.Context) (string, bool) {
	kind, ok := ctx.Value(keyTargetKind).(string)
	return kind, ok
}

// GetRetryAttempt extracts the current retry attempt from context
func GetRetryAttempt(ctx context.Context) int {
	attempt, ok := ctx.Value(keyRetryAttempt).(int)
	if !ok {
		return 0
	}
	return attempt
}

// Elapsed returns how long the job has been running
func Elapsed(ctx context.Context) time.Duration {
	start, ok := ctx.Value(keyJobStartTime).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}
