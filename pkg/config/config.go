package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Embedding EmbeddingConfig
	Groq      GroqConfig
	RAG       RAGConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	AllowedOrigins  []string
	ShutdownTimeout int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
}

// EmbeddingConfig holds embedding backend configuration
type EmbeddingConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// GroqConfig holds Groq LLM configuration
type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// RAGConfig holds the retrieval pipeline tunables. Parsed from RAG_*
// environment variables via envconfig so every knob is overridable per
// deployment without a code change.
type RAGConfig struct {
	// Chunking
	ChunkTokenCeiling int           `envconfig:"CHUNK_TOKEN_CEILING" default:"300"`
	ChunkMaxSpan      time.Duration `envconfig:"CHUNK_MAX_SPAN" default:"120s"`
	ChunkMinTokens    int           `envconfig:"CHUNK_MIN_TOKENS" default:"50"`

	// Summary cadence: recompute every N new chunks
	SummaryEveryChunks int `envconfig:"SUMMARY_EVERY_CHUNKS" default:"5"`

	// Embedding queue
	MaxRetries    int           `envconfig:"MAX_RETRIES" default:"5"`
	BackoffBase   time.Duration `envconfig:"BACKOFF_BASE" default:"2s"`
	BackoffCap    time.Duration `envconfig:"BACKOFF_CAP" default:"5m"`
	DrainBatch    int           `envconfig:"DRAIN_BATCH" default:"10"`
	DrainInterval time.Duration `envconfig:"DRAIN_INTERVAL" default:"5s"`
	StaleTimeout  time.Duration `envconfig:"STALE_TIMEOUT" default:"10m"`

	// Retrieval
	TokenBudget      int           `envconfig:"TOKEN_BUDGET" default:"1500"`
	RecencyWeight    float64       `envconfig:"RECENCY_WEIGHT" default:"0.05"`
	SummaryThreshold float64       `envconfig:"SUMMARY_THRESHOLD" default:"0.55"`
	QueryTimeout     time.Duration `envconfig:"QUERY_TIMEOUT" default:"10s"`

	// Fallback
	MinChunksForRAG int `envconfig:"MIN_CHUNKS_FOR_RAG" default:"3"`
	FallbackWindow  int `envconfig:"FALLBACK_WINDOW" default:"20"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			AllowedOrigins:  []string{getEnv("ALLOWED_ORIGINS", "http://localhost:3000")},
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			Name:        getEnv("DB_NAME", "meeting_memory"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 5),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "your-access-secret-change-in-production"),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", "15m"),
		},
		Embedding: EmbeddingConfig{
			APIKey:    getEnv("EMBEDDING_API_KEY", ""),
			BaseURL:   getEnv("EMBEDDING_API_URL", "https://api.openai.com/v1"),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			Timeout:   getEnvAsDuration("EMBEDDING_TIMEOUT", "30s"),
		},
		Groq: GroqConfig{
			APIKey:  getEnv("GROQ_API_KEY", ""),
			BaseURL: getEnv("GROQ_API_URL", "https://api.groq.com"),
			Model:   getEnv("GROQ_MODEL", "llama-3.1-70b-versatile"),
		},
	}

	if err := envconfig.Process("RAG", &config.RAG); err != nil {
		return nil, fmt.Errorf("failed to parse RAG config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive")
	}
	if c.RAG.ChunkTokenCeiling <= 0 {
		return fmt.Errorf("RAG_CHUNK_TOKEN_CEILING must be positive")
	}
	if c.RAG.MaxRetries < 0 {
		return fmt.Errorf("RAG_MAX_RETRIES must not be negative")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
