package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Gemini    GeminiConfig
	OpenAI    OpenAIConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Translate TranslateConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Addr              string
	MaxConcurrentRuns int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type PostgresConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type TranslateConfig struct {
	BatchSize       int
	Concurrency     int
	MaxRetries      int
	InterBatchDelay time.Duration
	BatchTimeout    time.Duration
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:              getEnv("SERVER_ADDR", ":8080"),
			MaxConcurrentRuns: getEnvInt("MAX_CONCURRENT_RUNS", 3),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Enabled:  getEnvBool("POSTGRES_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "csvlingo"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "csvlingo"),
		},
		Translate: TranslateConfig{
			BatchSize:       getEnvInt("TRANSLATE_BATCH_SIZE", 25),
			Concurrency:     getEnvInt("TRANSLATE_CONCURRENCY", 4),
			MaxRetries:      getEnvInt("TRANSLATE_MAX_RETRIES", 3),
			InterBatchDelay: time.Duration(getEnvInt("TRANSLATE_INTER_BATCH_DELAY_MS", 500)) * time.Millisecond,
			BatchTimeout:    time.Duration(getEnvInt("TRANSLATE_BATCH_TIMEOUT_SECONDS", 300)) * time.Second,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("at least one of GEMINI_API_KEY or OPENAI_API_KEY is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("SERVER_ADDR is required")
	}
	if c.Translate.BatchSize < 1 {
		return fmt.Errorf("TRANSLATE_BATCH_SIZE must be >= 1")
	}
	if c.Translate.Concurrency < 1 {
		return fmt.Errorf("TRANSLATE_CONCURRENCY must be >= 1")
	}
	if c.Translate.MaxRetries < 1 {
		return fmt.Errorf("TRANSLATE_MAX_RETRIES must be >= 1")
	}
	if c.Postgres.Enabled && c.Postgres.User == "" {
		return fmt.Errorf("POSTGRES_USER is required when POSTGRES_ENABLED is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
