package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds runtime configuration read from the environment.
type Settings struct {
	// ConfigDir is where experiment YAML files live.
	ConfigDir string

	// DatabaseURL is the Postgres connection URL for the records page.
	// Empty disables the records page.
	DatabaseURL    string
	DatabaseSchema string
	TablePrefix    string

	// RedisURL enables distributed evaluation when set.
	RedisURL  string
	QueueName string

	// S3Bucket enables mirroring result images to S3 when set.
	S3Bucket string
	S3Region string
	S3Prefix string

	// FlagDir receives flagged OCR results.
	FlagDir string

	ListenAddr string

	OCRPoolSize   int
	OCRBinarize   bool
	BufferTimeout time.Duration
}

// LoadSettings loads .env (if present) and reads Settings from the
// environment.
func LoadSettings() (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	s := &Settings{
		ConfigDir:      getEnvOrDefault("CRAFT_DEMO_CONFIG_DIR", "config"),
		DatabaseURL:    getEnvOrDefault("CRAFT_DEMO_DATABASE_URL", ""),
		DatabaseSchema: getEnvOrDefault("CRAFT_DEMO_DATABASE_SCHEMA", "public"),
		TablePrefix:    getEnvOrDefault("CRAFT_DEMO_TABLE_PREFIX", ""),
		RedisURL:       getEnvOrDefault("CRAFT_DEMO_REDIS_URL", ""),
		QueueName:      getEnvOrDefault("CRAFT_DEMO_QUEUE", "craft"),
		S3Bucket:       getEnvOrDefault("CRAFT_DEMO_S3_BUCKET", ""),
		S3Region:       getEnvOrDefault("CRAFT_DEMO_S3_REGION", "us-east-1"),
		S3Prefix:       getEnvOrDefault("CRAFT_DEMO_S3_PREFIX", ""),
		FlagDir:        getEnvOrDefault("CRAFT_DEMO_FLAG_DIR", "Results"),
		ListenAddr:     getEnvOrDefault("CRAFT_DEMO_LISTEN", "0.0.0.0:7860"),
		OCRPoolSize:    getEnvAsIntOrDefault("CRAFT_DEMO_OCR_POOL", 1),
		OCRBinarize:    getEnvAsBoolOrDefault("CRAFT_DEMO_OCR_BINARIZE", false),
		BufferTimeout:  getEnvAsDurationOrDefault("CRAFT_DEMO_BUFFER_TIMEOUT", 5*time.Minute),
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

// Validate checks ranges of the numeric settings.
func (s *Settings) Validate() error {
	if s.OCRPoolSize < 1 || s.OCRPoolSize > 64 {
		return fmt.Errorf("CRAFT_DEMO_OCR_POOL must be between 1 and 64, got %d", s.OCRPoolSize)
	}
	if s.BufferTimeout <= 0 {
		return fmt.Errorf("CRAFT_DEMO_BUFFER_TIMEOUT must be positive, got %v", s.BufferTimeout)
	}
	if s.ConfigDir == "" {
		return fmt.Errorf("CRAFT_DEMO_CONFIG_DIR must not be empty")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
