package entities

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies which side of the conversation produced an utterance
type Speaker string

const (
	SpeakerSelf  Speaker = "self"  // The assistant's user
	SpeakerOther Speaker = "other" // Everyone else in the meeting
)

// IsValid checks if the Speaker is a valid value
func (s Speaker) IsValid() bool {
	return s == SpeakerSelf || s == SpeakerOther
}

// Label returns the normalized speaker label used in cleaned chunk text
func (s Speaker) Label() string {
	if s == SpeakerSelf {
		return "Me:"
	}
	return "Them:"
}

// Utterance represents a single transcribed speaker turn. Utterances are
// immutable once stored and ordered by TimestampMS within a meeting; they
// are the raw material for both chunking and the context-window fallback.
type Utterance struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID   uuid.UUID `json:"meeting_id" gorm:"type:uuid;not null;index"`
	Speaker     Speaker   `json:"speaker" gorm:"type:varchar(10);not null"`
	Text        string    `json:"text" gorm:"type:text;not null"`
	TimestampMS int64     `json:"timestamp_ms" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Utterance) TableName() string {
	return "meeting_utterances"
}

// NewUtterance creates a new utterance
func NewUtterance(meetingID uuid.UUID, speaker Speaker, text string, timestampMS int64) *Utterance {
	return &Utterance{
		ID:          uuid.New(),
		MeetingID:   meetingID,
		Speaker:     speaker,
		Text:        text,
		TimestampMS: timestampMS,
		CreatedAt:   time.Now(),
	}
}
