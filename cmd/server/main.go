package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lokeshpanthangi/lecturechat/internal/api"
	"github.com/lokeshpanthangi/lecturechat/internal/chunker"
	"github.com/lokeshpanthangi/lecturechat/internal/config"
	"github.com/lokeshpanthangi/lecturechat/internal/embedding"
	"github.com/lokeshpanthangi/lecturechat/internal/logger"
	"github.com/lokeshpanthangi/lecturechat/internal/media"
	"github.com/lokeshpanthangi/lecturechat/internal/pipeline"
	"github.com/lokeshpanthangi/lecturechat/internal/rag"
	"github.com/lokeshpanthangi/lecturechat/internal/repository"
	"github.com/lokeshpanthangi/lecturechat/internal/transcribe"
	"github.com/lokeshpanthangi/lecturechat/internal/vectorstore"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	log := logger.New().WithModule("server")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	client := openai.NewClient(cfg.OpenAIKey)

	// Record store: postgres when DATABASE_URL is set, in-memory otherwise.
	var store repository.Store
	if cfg.DatabaseURL != "" {
		db, err := repository.Open(cfg.DatabaseURL)
		if err != nil {
			log.WithField("error", err.Error()).Warn("database unavailable, falling back to in-memory store")
			store = repository.NewMemoryStore()
		} else {
			store = repository.NewPostgresStore(db)
			log.Info("connected to postgres")
		}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store (data is lost on restart)")
		store = repository.NewMemoryStore()
	}

	// Vector index: qdrant, in-memory fallback when unreachable.
	var index vectorstore.Index
	qdrantIdx, err := vectorstore.NewQdrantIndex(vectorstore.QdrantConfig{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		UseTLS:     cfg.QdrantUseTLS,
		Collection: cfg.QdrantCollection,
		Dimension:  cfg.EmbeddingDimension,
	}, logger.New().WithModule("vectorstore"))
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		err = qdrantIdx.EnsureCollection(ctx)
		cancel()
	}
	if err != nil {
		log.WithField("error", err.Error()).Warn("qdrant unavailable, using in-memory vector index")
		index = vectorstore.NewMemoryIndex(cfg.EmbeddingDimension)
	} else {
		index = qdrantIdx
		log.WithField("collection", cfg.QdrantCollection).Info("qdrant collection ready")
	}

	normalizer := media.NewNormalizer(cfg.TempDir, logger.New().WithModule("media"))
	transcriber := transcribe.NewWhisperTranscriber(client, logger.New().WithModule("transcribe"))
	embedder := embedding.New(client, cfg.EmbeddingModel, cfg.EmbeddingDimension, logger.New().WithModule("embedding"))
	generator := rag.NewOpenAIGenerator(client, cfg.ChatModel)

	chunkOpts := chunker.Options{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	if err := chunkOpts.Validate(); err != nil {
		log.Fatalf("invalid chunking configuration: %v", err)
	}

	pipe := pipeline.New(store, normalizer, transcriber, embedder, index, chunkOpts, cfg.EmbeddingModel, logger.New().WithModule("pipeline"))
	engine := rag.NewEngine(store, embedder, index, generator, logger.New().WithModule("rag"))

	r := gin.Default()
	r.MaxMultipartMemory = 32 << 20

	// Add CORS middleware for web clients
	r.Use(corsMiddleware())

	handler := api.NewHandler(store, pipe, engine, index, cfg.UploadDir, logger.New().WithModule("api"))
	handler.RegisterRoutes(r)

	log.WithField("port", cfg.Port).Info("lecturechat backend running")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// corsMiddleware adds CORS headers for web clients
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
