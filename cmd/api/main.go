package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/johnquangdev/meeting-memory/pkg/validator"

	"github.com/johnquangdev/meeting-memory/internal/adapter/handler"
	"github.com/johnquangdev/meeting-memory/internal/adapter/repository"
	"github.com/johnquangdev/meeting-memory/internal/infrastructure/cache"
	"github.com/johnquangdev/meeting-memory/internal/infrastructure/database"
	httpmw "github.com/johnquangdev/meeting-memory/internal/infrastructure/http/middleware"
	memoryuse "github.com/johnquangdev/meeting-memory/internal/usecase/memory"
	pkgai "github.com/johnquangdev/meeting-memory/pkg/ai"
	"github.com/johnquangdev/meeting-memory/pkg/config"
	"github.com/johnquangdev/meeting-memory/pkg/jwt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Set-Cookie", "Cookie"},
		AllowCredentials: true,
	}))

	// Initialize dependencies
	log.Println("🔧 Initializing dependencies...")

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Apply migrations only when explicitly enabled in config.
	// Production deployments should manage schema via sql-migrate.
	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			log.Fatalf("AutoMigrate is enabled in production. Disable DB_AUTO_MIGRATE or manage schema with sql-migrate.")
		}
		log.Println("🔄 Applying migrations (development only) ...")
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	} else {
		log.Println("🔄 Skipping migrations; use sql-migrate for schema migrations in CI/CD/production")
	}

	// Initialize the query embedding cache: Redis when enabled, an
	// in-process TTL cache otherwise.
	var embeddingCache memoryuse.QueryEmbeddingCache
	if cfg.Redis.Enabled {
		log.Println("📦 Connecting to Redis...")
		redisClient, err := cache.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		embeddingCache = cache.NewRedisEmbeddingCache(redisClient, time.Hour, logger)
	} else {
		log.Println("📦 Redis disabled, using in-memory embedding cache...")
		embeddingCache = cache.NewMemoryEmbeddingCache(time.Hour)
	}

	// Initialize repositories
	log.Println("⚙️  Initializing repositories...")
	utteranceRepo := repository.NewUtteranceRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	summaryRepo := repository.NewSummaryRepository(db)
	jobRepo := repository.NewEmbeddingJobRepository(db)

	// Initialize AI clients
	log.Println("🤖 Initializing AI clients...")
	embeddingClient := pkgai.NewOpenAIEmbeddingClient(&cfg.Embedding)
	groqClient := pkgai.NewGroqClient(&cfg.Groq)

	// Initialize memory pipeline
	log.Println("🧠 Initializing memory pipeline...")
	queue := memoryuse.NewEmbeddingQueue(jobRepo, chunkRepo, summaryRepo, embeddingClient, cfg.RAG, logger)
	composer := memoryuse.NewSummaryComposer(summaryRepo, queue, groqClient, cfg.RAG, logger)
	retrieval := memoryuse.NewRetrievalEngine(chunkRepo, summaryRepo, embeddingClient, embeddingCache, cfg.RAG, logger)
	fallback := memoryuse.NewFallbackPolicy(chunkRepo, utteranceRepo, summaryRepo, cfg.RAG, logger)
	memoryService := memoryuse.NewService(
		utteranceRepo,
		chunkRepo,
		jobRepo,
		summaryRepo,
		queue,
		composer,
		retrieval,
		fallback,
		groqClient,
		cfg.RAG,
		logger,
	)

	// Start the background embedding worker
	log.Println("⚙️  Starting embedding worker...")
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if err := memoryService.StartWorker(workerCtx); err != nil {
		log.Fatalf("Failed to start embedding worker: %v", err)
	}

	// Initialize JWT manager
	log.Println("🔑 Initializing JWT manager...")
	jwtManager := jwt.NewManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)

	// Initialize memory handler
	log.Println("🚀 Initializing memory handler...")
	memoryHandler := handler.NewMemory(memoryService, logger)

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	authEchoMW := httpmw.EchoAuth(jwtManager)
	router := handler.NewRouter(cfg, memoryHandler, authEchoMW)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Stop the embedding worker before closing the store it drains into.
	if err := memoryService.StopWorker(); err != nil {
		log.Printf("⚠️  Failed to stop embedding worker: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
