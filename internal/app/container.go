package app

import (
	"context"
	"fmt"

	"github.com/jwhan/csvlingo/internal/config"
	"github.com/jwhan/csvlingo/internal/constants"
	"github.com/jwhan/csvlingo/internal/provider"
	"github.com/jwhan/csvlingo/internal/server"
	"github.com/jwhan/csvlingo/internal/service/cache"
	"github.com/jwhan/csvlingo/internal/service/history"
	"github.com/jwhan/csvlingo/internal/translate"
	"go.uber.org/zap"
)

// Container bundles the assembled services behind the HTTP server.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Server       *server.Server
	Orchestrator *translate.Orchestrator
	Providers    *provider.Manager

	closers []func()
}

// Close releases infrastructure resources in reverse construction order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build assembles all infrastructure services and the translation pipeline.
// Heavy initialization (Redis/Postgres/provider clients) happens here so main
// stays focused on lifecycle.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	// Cache is optional: without Redis the pipeline still runs, just without
	// the translation memo and upload quotas.
	var (
		cacheSvc   *cache.CacheService
		memo       translate.Memo
		runCounter server.RunCounter
	)
	cacheSvc, cacheErr := cache.NewCacheService(cache.CacheConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if cacheErr != nil {
		logger.Warn("Redis unavailable, running without translation memo", zap.Error(cacheErr))
	} else {
		closers = append(closers, func() {
			_ = cacheSvc.Close()
		})
		memo = cacheSvc
		runCounter = cacheSvc
	}

	var historyRepo *history.Repository
	var recorder server.Recorder
	var historyReader server.HistoryReader
	if cfg.Postgres.Enabled {
		historyRepo, err = history.NewRepository(history.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create history repository: %w", err)
		}
		closers = append(closers, func() {
			_ = historyRepo.Close()
		})
		recorder = historyRepo
		historyReader = historyRepo
	}

	providers, err := provider.NewManager(ctx, provider.ManagerConfig{
		GeminiAPIKey:   cfg.Gemini.APIKey,
		GeminiModel:    cfg.Gemini.Model,
		OpenAIAPIKey:   cfg.OpenAI.APIKey,
		OpenAIModel:    cfg.OpenAI.Model,
		EnableFallback: cfg.OpenAI.EnableFallback,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider manager: %w", err)
	}

	cellTranslator := translate.NewCellTranslator(providers, memo, translate.CellTranslatorOptions{
		MaxAttempts: cfg.Translate.MaxRetries,
		Jitter:      constants.RetryConfig.Jitter,
	}, logger)

	executor := translate.NewBatchExecutor(cellTranslator, cfg.Translate.Concurrency, logger)

	orchestrator := translate.NewOrchestrator(executor, translate.Options{
		InterBatchDelay: cfg.Translate.InterBatchDelay,
		BatchTimeout:    cfg.Translate.BatchTimeout,
	}, logger)

	registry := server.NewRegistry(orchestrator, recorder,
		cfg.Server.MaxConcurrentRuns, constants.ServerConfig.JobRetention)

	httpServer := server.New(server.Options{
		Addr: cfg.Server.Addr,
	}, registry, runCounter, historyReader, providers, logger)

	logger.Info("Application container built",
		zap.Bool("redis", cacheSvc != nil && cacheErr == nil),
		zap.Bool("postgres", historyRepo != nil),
		zap.String("addr", cfg.Server.Addr),
	)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Server:       httpServer,
		Orchestrator: orchestrator,
		Providers:    providers,
		closers:      closers,
	}, nil
}
