package entities

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded, speaker-coherent span of transcript text and the
// unit of semantic retrieval. ChunkIndex values for a meeting are dense
// from 0 and ordered by StartTS. A chunk is never mutated after creation
// except to attach its embedding once the queue job completes.
type Chunk struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeetingID   uuid.UUID `json:"meeting_id" gorm:"type:uuid;not null;index:idx_chunks_meeting"`
	ChunkIndex  int       `json:"chunk_index" gorm:"not null;index:idx_chunks_meeting"`
	Speaker     *Speaker  `json:"speaker,omitempty" gorm:"type:varchar(10)"` // nil when the chunk mixes speakers
	StartTS     int64     `json:"start_ts" gorm:"not null"`
	EndTS       int64     `json:"end_ts" gorm:"not null"`
	CleanedText string    `json:"cleaned_text" gorm:"type:text;not null"`
	TokenCount  int       `json:"token_count" gorm:"not null"`
	Embedding   Vector    `json:"embedding,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Chunk) TableName() string {
	return "chunks"
}

// NewChunk creates a new chunk without an embedding
func NewChunk(meetingID uuid.UUID, index int, speaker *Speaker, startTS, endTS int64, cleanedText string, tokenCount int) *Chunk {
	return &Chunk{
		ID:          uuid.New(),
		MeetingID:   meetingID,
		ChunkIndex:  index,
		Speaker:     speaker,
		StartTS:     startTS,
		EndTS:       endTS,
		CleanedText: cleanedText,
		TokenCount:  tokenCount,
		CreatedAt:   time.Now(),
	}
}

// HasEmbedding reports whether the chunk's embedding job has completed
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
