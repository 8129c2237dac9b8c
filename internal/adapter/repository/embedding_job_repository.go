package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

// EmbeddingJobRepository handles embedding job persistence and claiming
type EmbeddingJobRepository struct {
	db *gorm.DB
}

// NewEmbeddingJobRepository creates a new embedding job repository
func NewEmbeddingJobRepository(db *gorm.DB) *EmbeddingJobRepository {
	return &EmbeddingJobRepository{db: db}
}

// Create stores a new embedding job
func (r *EmbeddingJobRepository) Create(ctx context.Context, job *entities.EmbeddingJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// ClaimPending atomically selects up to batchSize eligible pending jobs
// (backoff gate passed, FIFO by created_at) and marks them in_progress.
// The row lock with SKIP LOCKED keeps concurrent drains on disjoint rows;
// per-target uniqueness is enforced on top of it: duplicate candidates
// for one target collapse to the oldest, and a target whose job is
// already in flight is skipped until that job reaches a terminal state.
func (r *EmbeddingJobRepository) ClaimPending(ctx context.Context, batchSize int) ([]entities.EmbeddingJob, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	var claimed []entities.EmbeddingJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []entities.EmbeddingJob
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", entities.EmbeddingJobStatusPending, time.Now()).
			Order("created_at ASC").
			Limit(batchSize).
			Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		targetIDs := make([]uuid.UUID, 0, len(candidates))
		for i := range candidates {
			targetIDs = append(targetIDs, candidates[i].TargetID)
		}
		var inFlight []entities.EmbeddingJob
		if err := tx.
			Where("status = ? AND target_id IN ?", entities.EmbeddingJobStatusInProgress, targetIDs).
			Find(&inFlight).Error; err != nil {
			return err
		}

		type targetKey struct {
			kind entities.EmbeddingTargetKind
			id   uuid.UUID
		}
		busy := make(map[targetKey]bool, len(inFlight))
		for i := range inFlight {
			busy[targetKey{inFlight[i].TargetKind, inFlight[i].TargetID}] = true
		}

		jobs := make([]entities.EmbeddingJob, 0, len(candidates))
		for i := range candidates {
			key := targetKey{candidates[i].TargetKind, candidates[i].TargetID}
			if busy[key] {
				continue
			}
			busy[key] = true
			jobs = append(jobs, candidates[i])
		}
		if len(jobs) == 0 {
			return nil
		}

		now := time.Now()
		ids := make([]uuid.UUID, len(jobs))
		for i := range jobs {
			ids[i] = jobs[i].ID
		}
		if err := tx.
			Model(&entities.EmbeddingJob{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     entities.EmbeddingJobStatusInProgress,
				"started_at": now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		for i := range jobs {
			jobs[i].Status = entities.EmbeddingJobStatusInProgress
			startedAt := now
			jobs[i].StartedAt = &startedAt
			jobs[i].UpdatedAt = now
		}
		claimed = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// FindPendingByTarget returns the oldest pending job for a target, or nil
func (r *EmbeddingJobRepository) FindPendingByTarget(ctx context.Context, kind entities.EmbeddingTargetKind, targetID uuid.UUID) (*entities.EmbeddingJob, error) {
	var job entities.EmbeddingJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND target_kind = ? AND target_id = ?", entities.EmbeddingJobStatusPending, kind, targetID).
		Order("created_at ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Update persists the full job row after a state transition
func (r *EmbeddingJobRepository) Update(ctx context.Context, job *entities.EmbeddingJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	return r.db.WithContext(ctx).
		Model(&entities.EmbeddingJob{}).
		Where("id = ?", job.ID).
		Save(job).Error
}

// ResetStale returns in_progress jobs older than the timeout to pending.
// A crash between claim and completion leaves the row in_progress; this
// recovery pass runs once at worker startup.
func (r *EmbeddingJobRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entities.EmbeddingJob{}).
		Where("status = ? AND started_at < ?", entities.EmbeddingJobStatusInProgress, cutoff).
		Updates(map[string]interface{}{
			"status":          entities.EmbeddingJobStatusPending,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	return result.RowsAffected, result.Error
}

// ListByMeeting retrieves all embedding jobs for a meeting, newest first
func (r *EmbeddingJobRepository) ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]entities.EmbeddingJob, error) {
	var jobs []entities.EmbeddingJob
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs in a given status for a meeting
func (r *EmbeddingJobRepository) CountByStatus(ctx context.Context, meetingID uuid.UUID, status entities.EmbeddingJobStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.EmbeddingJob{}).
		Where("meeting_id = ? AND status = ?", meetingID, status).
		Count(&count).Error
	return count, err
}
