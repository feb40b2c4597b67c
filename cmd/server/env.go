package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcoot/livequiz/internal/factory"
	"github.com/mcoot/livequiz/internal/middleware"
	"github.com/mcoot/livequiz/internal/services/generator"
	"github.com/mcoot/livequiz/internal/services/room"
	"github.com/mcoot/livequiz/internal/storage/postgres"
	redisstorage "github.com/mcoot/livequiz/internal/storage/redis"
)

// serverEnv is the server configuration read from the environment
type serverEnv struct {
	Port             int
	StorageType      string
	RedisURL         string
	DatabaseURL      string
	OpenAIKey        string
	OpenAIModel      string
	OpenAIBaseURL    string
	QuestionBankPath string
	AllowedOrigins   []string
	IdleTimeout      time.Duration
}

func loadEnv() (serverEnv, error) {
	return parseEnv(os.Getenv)
}

func parseEnv(getenv func(string) string) (serverEnv, error) {
	env := serverEnv{
		Port:             8080,
		StorageType:      getenv("STORAGE_TYPE"),
		RedisURL:         getenv("REDIS_URL"),
		DatabaseURL:      getenv("DATABASE_URL"),
		OpenAIKey:        getenv("OPENAI_API_KEY"),
		OpenAIModel:      getenv("OPENAI_MODEL"),
		OpenAIBaseURL:    getenv("OPENAI_BASE_URL"),
		QuestionBankPath: getenv("QUESTION_BANK_PATH"),
		AllowedOrigins:   middleware.ParseOrigins(getenv("CORS_ALLOWED_ORIGINS")),
		IdleTimeout:      room.DefaultIdleTimeout,
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return env, fmt.Errorf("invalid PORT %q", v)
		}
		env.Port = port
	}

	if v := getenv("ROOM_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return env, fmt.Errorf("invalid ROOM_IDLE_TIMEOUT %q", v)
		}
		env.IdleTimeout = d
	}

	switch env.StorageType {
	case factory.StorageTypeRedis:
		if env.RedisURL == "" {
			return env, fmt.Errorf("REDIS_URL required when STORAGE_TYPE=redis")
		}
	case factory.StorageTypePostgres:
		if env.DatabaseURL == "" {
			return env, fmt.Errorf("DATABASE_URL required when STORAGE_TYPE=postgres")
		}
	}

	return env, nil
}

func (e serverEnv) factoryConfig(logger *slog.Logger) factory.Config {
	cfg := factory.Config{
		Logger:      logger,
		StorageType: e.StorageType,
		OpenAIConfig: generator.OpenAIConfig{
			APIKey:  e.OpenAIKey,
			Model:   e.OpenAIModel,
			BaseURL: e.OpenAIBaseURL,
		},
		QuestionBankPath: e.QuestionBankPath,
		RoomConfig: room.Config{
			IdleTimeout:  e.IdleTimeout,
			ReapInterval: room.DefaultReapInterval,
		},
		AllowedOrigins: e.AllowedOrigins,
	}

	switch e.StorageType {
	case factory.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = e.RedisURL
		cfg.RedisConfig = &redisCfg
	case factory.StorageTypePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = e.DatabaseURL
		cfg.PostgresConfig = &pgCfg
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
