package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

// ChunkRepository handles chunk persistence and the meeting-scoped
// embedding scan. There is deliberately no vector index: meetings top out
// at a few hundred chunks, so a full scan plus Go-side cosine similarity
// is simpler and fast enough.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Create stores a new chunk
func (r *ChunkRepository) Create(ctx context.Context, chunk *entities.Chunk) error {
	if chunk == nil {
		return errors.New("chunk cannot be nil")
	}
	return r.db.WithContext(ctx).Create(chunk).Error
}

// GetByID retrieves a chunk by ID
func (r *ChunkRepository) GetByID(ctx context.Context, chunkID uuid.UUID) (*entities.Chunk, error) {
	var chunk entities.Chunk
	if err := r.db.WithContext(ctx).Where("id = ?", chunkID).First(&chunk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chunk, nil
}

// UpdateEmbedding attaches the completed embedding vector to a chunk
func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, chunkID uuid.UUID, embedding entities.Vector) error {
	return r.db.WithContext(ctx).
		Model(&entities.Chunk{}).
		Where("id = ?", chunkID).
		Update("embedding", embedding).Error
}

// ListOrdered returns all chunks for a meeting ordered by chunk index
func (r *ChunkRepository) ListOrdered(ctx context.Context, meetingID uuid.UUID) ([]entities.Chunk, error) {
	var chunks []entities.Chunk
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListEmbedded returns only chunks with a completed embedding, ordered by
// chunk index. Chunks still waiting on the queue are simply absent from
// the scan set, never an error.
func (r *ChunkRepository) ListEmbedded(ctx context.Context, meetingID uuid.UUID) ([]entities.Chunk, error) {
	var chunks []entities.Chunk
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ? AND embedding IS NOT NULL", meetingID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// CountByMeeting returns the number of chunks for a meeting
func (r *ChunkRepository) CountByMeeting(ctx context.Context, meetingID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Chunk{}).
		Where("meeting_id = ?", meetingID).
		Count(&count).Error
	return count, err
}

// CountEmbedded returns the number of chunks with a completed embedding
func (r *ChunkRepository) CountEmbedded(ctx context.Context, meetingID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Chunk{}).
		Where("meeting_id = ? AND embedding IS NOT NULL", meetingID).
		Count(&count).Error
	return count, err
}

// NextIndex returns the next dense chunk index for a meeting
func (r *ChunkRepository) NextIndex(ctx context.Context, meetingID uuid.UUID) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.Chunk{}).
		Where("meeting_id = ?", meetingID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
