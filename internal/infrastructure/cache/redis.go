package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// NewRedisClient creates a new Redis client and verifies the connection
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisEmbeddingCache caches query-text embeddings in Redis. Cache errors
// degrade to a miss: a broken Redis only costs an extra embedding call.
type RedisEmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisEmbeddingCache creates a Redis-backed query embedding cache
func NewRedisEmbeddingCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func embeddingKey(text string) string {
	return "query_embedding:" + text
}

// Get returns the cached embedding for the query text, if present
func (c *RedisEmbeddingCache) Get(ctx context.Context, text string) (entities.Vector, bool) {
	data, err := c.client.Get(ctx, embeddingKey(text)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var vector entities.Vector
	if err := json.Unmarshal(data, &vector); err != nil {
		if c.logger != nil {
			c.logger.Warn("embedding cache entry corrupt, ignoring", zap.Error(err))
		}
		return nil, false
	}
	return vector, true
}

// Set stores the embedding for the query text with the configured TTL
func (c *RedisEmbeddingCache) Set(ctx context.Context, text string, vector entities.Vector) {
	data, err := json.Marshal(vector)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("failed to encode embedding for cache", zap.Error(err))
		}
		return
	}
	if err := c.client.Set(ctx, embeddingKey(text), data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}
