package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

// UtteranceRepository handles raw transcript utterance persistence
type UtteranceRepository struct {
	db *gorm.DB
}

// NewUtteranceRepository creates a new utterance repository
func NewUtteranceRepository(db *gorm.DB) *UtteranceRepository {
	return &UtteranceRepository{db: db}
}

// Create stores a new utterance
func (r *UtteranceRepository) Create(ctx context.Context, u *entities.Utterance) error {
	if u == nil {
		return errors.New("utterance cannot be nil")
	}
	return r.db.WithContext(ctx).Create(u).Error
}

// ListRecent returns the most recent `limit` utterances for a meeting,
// ordered oldest first so the caller can render them as a timeline
func (r *UtteranceRepository) ListRecent(ctx context.Context, meetingID uuid.UUID, limit int) ([]entities.Utterance, error) {
	if limit <= 0 {
		limit = 20
	}

	var utterances []entities.Utterance
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("timestamp_ms DESC").
		Limit(limit).
		Find(&utterances).Error; err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(utterances)-1; i < j; i, j = i+1, j-1 {
		utterances[i], utterances[j] = utterances[j], utterances[i]
	}
	return utterances, nil
}

// CountByMeeting returns the number of utterances stored for a meeting
func (r *UtteranceRepository) CountByMeeting(ctx context.Context, meetingID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Utterance{}).
		Where("meeting_id = ?", meetingID).
		Count(&count).Error
	return count, err
}
