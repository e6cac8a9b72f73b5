package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port        string
	DatabaseURL string
	OpenAIKey   string

	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string
	QdrantUseTLS     bool

	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string

	ChunkSize    int
	ChunkOverlap int

	UploadDir string
	TempDir   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),

		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "lecture-chunks"),
		QdrantUseTLS:     os.Getenv("QDRANT_USE_TLS") == "true",

		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		ChatModel:          getEnv("CHAT_MODEL", "gpt-4o-mini"),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
		TempDir:   getEnv("TEMP_DIR", os.TempDir()),
	}

	// Validate required environment variables
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required. Please set it as environment variable:\n  Linux/Mac: export OPENAI_API_KEY=\"your_key\"\n  Windows PowerShell: $env:OPENAI_API_KEY=\"your_key\"")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
