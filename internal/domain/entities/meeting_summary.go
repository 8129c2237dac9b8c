package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MeetingSummary is the single rolling meeting-level summary: one live row
// per meeting, fully overwritten on each recomputation. Its embedding acts
// as the meeting's global semantic signature for broad questions that no
// individual chunk answers well.
type MeetingSummary struct {
	ID          uuid.UUID                    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID   uuid.UUID                    `json:"meeting_id" gorm:"type:uuid;not null;uniqueIndex"`
	SummaryText string                       `json:"summary_text" gorm:"type:text;not null"`
	KeyPoints   datatypes.JSONSlice[string]  `json:"key_points,omitempty" gorm:"type:jsonb"`
	Embedding   Vector                       `json:"embedding,omitempty" gorm:"type:jsonb"`
	ChunksSeen  int                          `json:"chunks_seen" gorm:"not null;default:0"` // chunk count at last recompute
	CreatedAt   time.Time                    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time                    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (MeetingSummary) TableName() string {
	return "meeting_summaries"
}

// NewMeetingSummary creates a new meeting summary
func NewMeetingSummary(meetingID uuid.UUID, summaryText string, keyPoints []string, chunksSeen int) *MeetingSummary {
	return &MeetingSummary{
		ID:          uuid.New(),
		MeetingID:   meetingID,
		SummaryText: summaryText,
		KeyPoints:   datatypes.NewJSONSlice(keyPoints),
		ChunksSeen:  chunksSeen,
	}
}

// HasEmbedding reports whether the summary's embedding job has completed
func (s *MeetingSummary) HasEmbedding() bool {
	return len(s.Embedding) > 0
}
