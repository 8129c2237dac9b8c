package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

// SummaryRepository handles the single rolling summary row per meeting
type SummaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Upsert replaces the meeting's summary row. The embedding column is
// overwritten too (normally with nil) so a stale vector never scores
// against new summary text.
func (r *SummaryRepository) Upsert(ctx context.Context, summary *entities.MeetingSummary) error {
	if summary == nil {
		return errors.New("summary cannot be nil")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "meeting_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"summary_text", "key_points", "embedding", "chunks_seen", "updated_at",
			}),
		}).
		Create(summary).Error
}

// GetByMeeting retrieves the live summary for a meeting
func (r *SummaryRepository) GetByMeeting(ctx context.Context, meetingID uuid.UUID) (*entities.MeetingSummary, error) {
	var summary entities.MeetingSummary
	if err := r.db.WithContext(ctx).Where("meeting_id = ?", meetingID).First(&summary).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

// UpdateEmbedding attaches the completed embedding vector to a summary
func (r *SummaryRepository) UpdateEmbedding(ctx context.Context, summaryID uuid.UUID, embedding entities.Vector) error {
	return r.db.WithContext(ctx).
		Model(&entities.MeetingSummary{}).
		Where("id = ?", summaryID).
		Update("embedding", embedding).Error
}
