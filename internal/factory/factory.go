package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/livequiz/internal/dependencies/clock"
	"github.com/mcoot/livequiz/internal/dependencies/random"
	"github.com/mcoot/livequiz/internal/realtime"
	"github.com/mcoot/livequiz/internal/services/answer"
	"github.com/mcoot/livequiz/internal/services/broadcast"
	"github.com/mcoot/livequiz/internal/services/coordinator"
	"github.com/mcoot/livequiz/internal/services/generator"
	"github.com/mcoot/livequiz/internal/services/lifecycle"
	"github.com/mcoot/livequiz/internal/services/room"
	"github.com/mcoot/livequiz/internal/storage"
	"github.com/mcoot/livequiz/internal/storage/memory"
	"github.com/mcoot/livequiz/internal/storage/postgres"
	redisstorage "github.com/mcoot/livequiz/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// Generator type constants
const (
	GeneratorTypeNone   = "none"
	GeneratorTypeOpenAI = "openai"
	GeneratorTypeBank   = "bank"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Store

	// External dependencies
	Clock     clock.Clock
	Random    random.Random
	Generator generator.Generator

	// Services
	Registry    *room.Registry
	Broadcaster *broadcast.Broadcaster
	Lifecycle   *lifecycle.Controller
	Answers     *answer.Processor
	Coordinator *coordinator.Coordinator
	Realtime    *realtime.Handler

	Logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds database settings (required if StorageType is "postgres")
	PostgresConfig *postgres.Config
	// GeneratorType selects question generation ("none", "openai" or "bank").
	// If empty, openai is used when an API key is set, then bank when a
	// bank path is set, otherwise none.
	GeneratorType string
	// OpenAIConfig configures the openai generator
	OpenAIConfig generator.OpenAIConfig
	// QuestionBankPath is the JSON question bank for the bank generator
	QuestionBankPath string
	// Generator overrides GeneratorType when set
	Generator generator.Generator
	// RoomConfig controls idle room reclamation (optional)
	RoomConfig room.Config
	// AllowedOrigins restricts websocket origins; empty allows any
	AllowedOrigins []string
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		_ = closeStorage(store)
		return nil, err
	}

	roomCfg := cfg.RoomConfig
	if roomCfg.IdleTimeout == 0 && roomCfg.ReapInterval == 0 {
		roomCfg = room.DefaultConfig()
	}

	return newWithDependencies(store, gen, clock.New(), random.New(), roomCfg, cfg.AllowedOrigins, logger), nil
}

func newStorage(ctx context.Context, cfg Config) (storage.Store, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		return postgres.New(ctx, *cfg.PostgresConfig)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'postgres'", storageType)
	}
}

func newGenerator(cfg Config, logger *slog.Logger) (generator.Generator, error) {
	if cfg.Generator != nil {
		return cfg.Generator, nil
	}

	genType := cfg.GeneratorType
	if genType == "" {
		switch {
		case cfg.OpenAIConfig.APIKey != "":
			genType = GeneratorTypeOpenAI
		case cfg.QuestionBankPath != "":
			genType = GeneratorTypeBank
		default:
			genType = GeneratorTypeNone
		}
	}

	switch genType {
	case GeneratorTypeNone:
		return generator.None{}, nil
	case GeneratorTypeOpenAI:
		if cfg.OpenAIConfig.APIKey == "" {
			return nil, errors.New("OpenAIConfig.APIKey required when GeneratorType is openai")
		}
		return generator.NewOpenAI(cfg.OpenAIConfig, logger), nil
	case GeneratorTypeBank:
		if cfg.QuestionBankPath == "" {
			return nil, errors.New("QuestionBankPath required when GeneratorType is bank")
		}
		return generator.LoadBank(cfg.QuestionBankPath)
	default:
		return nil, fmt.Errorf("invalid GeneratorType %q: must be 'none', 'openai' or 'bank'", genType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Store,
	gen generator.Generator,
	clk clock.Clock,
	rnd random.Random,
	roomCfg room.Config,
	allowedOrigins []string,
	logger *slog.Logger,
) *App {
	registry := room.NewRegistry(store, clk, logger, roomCfg)
	broadcaster := broadcast.New(logger)
	lifecycleController := lifecycle.NewController(store, clk, logger)
	answers := answer.NewProcessor(store, broadcaster, clk, logger)
	coord := coordinator.New(store, registry, broadcaster, lifecycleController, answers, gen, clk, rnd, logger)
	rt := realtime.NewHandler(coord, broadcaster, logger, realtime.Config{AllowedOrigins: allowedOrigins})

	return &App{
		Storage:     store,
		Clock:       clk,
		Random:      rnd,
		Generator:   gen,
		Registry:    registry,
		Broadcaster: broadcaster,
		Lifecycle:   lifecycleController,
		Answers:     answers,
		Coordinator: coord,
		Realtime:    rt,
		Logger:      logger,
	}
}

// RunReaper reclaims idle rooms until ctx is cancelled
func (a *App) RunReaper(ctx context.Context) {
	a.Registry.RunReaper(ctx)
}

// Close releases the storage backend
func (a *App) Close() error {
	return closeStorage(a.Storage)
}

func closeStorage(store storage.Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
