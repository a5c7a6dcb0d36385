package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/arwatch/internal/analyzer"
	"github.com/FranksOps/arwatch/internal/config"
	"github.com/FranksOps/arwatch/internal/crawler"
	"github.com/FranksOps/arwatch/internal/dedupe"
	"github.com/FranksOps/arwatch/internal/logging"
	"github.com/FranksOps/arwatch/internal/metrics"
	"github.com/FranksOps/arwatch/internal/serp"
	"github.com/FranksOps/arwatch/internal/social"
	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/FranksOps/arwatch/internal/storage/postgres"
	"github.com/FranksOps/arwatch/internal/storage/sqlite"
	"github.com/redis/go-redis/v9"
)

// app holds the collaborators opened for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Backend
	tracker dedupe.Tracker
	redis   *redis.Client
	metrics *metrics.Server
}

// loadConfig reads configuration and builds the logger. It opens nothing.
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.v, opts.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp loads configuration and opens the store, the optional tracker and
// the optional metrics server.
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, tracker: dedupe.NopTracker{}}

	a.store, err = openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		a.tracker = dedupe.NewRedisTracker(a.redis, cfg.Redis.TTL, logger)
	} else {
		logger.Info("no redis configured, seen-URL tracker disabled")
	}

	if cfg.Metrics.Port > 0 {
		a.metrics, err = metrics.Start(cfg.Metrics.Port, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
	var (
		b   storage.Backend
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		b, err = sqlite.New(cfg.DSN)
	case "postgres":
		b, err = postgres.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return b, nil
}

// Close releases everything openApp opened.
func (a *app) Close() {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Stop(context.Background()))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", "err", err)
	}
}

func (a *app) analyzer() *analyzer.Analyzer {
	return analyzer.New(analyzer.ConfigFrom(a.cfg))
}

func (a *app) discoverer() (*crawler.Discoverer, error) {
	search, err := serp.NewFromConfig(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("search engines: %w", err)
	}
	a.logger.Info("search engines ready", "engines", search.Engines())
	return crawler.NewDiscoverer(crawler.DiscoveryConfigFrom(a.cfg), search, a.analyzer(), a.store, a.tracker, a.logger), nil
}

func (a *app) monitor() (*crawler.Monitor, error) {
	platforms, err := social.NewFromConfig(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("social platforms: %w", err)
	}
	return crawler.NewMonitor(crawler.MonitorConfigFrom(a.cfg), platforms, a.analyzer(), a.store, a.logger), nil
}
