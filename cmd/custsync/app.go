package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"custsync/internal/database"
	"custsync/internal/runner"
	"custsync/pkg/auth"
	"custsync/pkg/checkpoint"
	"custsync/pkg/config"
	"custsync/pkg/coordinator"
	"custsync/pkg/lock"
	"custsync/pkg/logger"
	"custsync/pkg/materializer"
	"custsync/pkg/recordcache"
	"custsync/pkg/storage"
	"custsync/pkg/upstream"
)

const shutdownTimeout = 15 * time.Second

// app is the wired service shared by every command
type app struct {
	cfg         *config.Config
	log         logger.Logger
	db          *gorm.DB
	redis       *redis.Client
	pool        *runner.Pool
	artifacts   *storage.Manager
	coordinator *coordinator.Coordinator
}

// loadConfig resolves configuration from flags, env, .env and file
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := globalFlags()
	for k, v := range extra {
		flags[k] = v
	}
	return config.Load(configFile, flags)
}

func newApp(ctx context.Context, extra map[string]interface{}) (*app, error) {
	cfg, err := loadConfig(extra)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	db, err := database.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db}

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	token, err := auth.NewManager().Resolve(cfg.Upstream.Token, cfg.Upstream.BaseURL)
	if errors.Is(err, auth.ErrTokenNotFound) {
		log.WarnWithFields("No upstream token configured; requests will be unauthenticated", map[string]interface{}{
			"host": auth.HostKey(cfg.Upstream.BaseURL),
		})
	} else if err != nil {
		a.close()
		return nil, err
	}

	a.artifacts, err = storage.NewManager(cfg.Output.Directory)
	if err != nil {
		a.close()
		return nil, err
	}

	cache := recordcache.New(db, log)
	a.pool = runner.NewPool(cfg.Runner.Workers, cfg.Runner.QueueSize, log)
	a.pool.Start()

	a.coordinator = coordinator.New(cfg, coordinator.Deps{
		Store:        checkpoint.NewStore(db, log),
		Cache:        cache,
		Source:       upstream.NewClient(cfg, token, log),
		Locker:       locker,
		Pool:         a.pool,
		Materializer: materializer.New(cache, a.artifacts, log),
		Logger:       log,
	})
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (lock.Locker, error) {
	if strings.ToLower(a.cfg.Lock.Backend) != "redis" {
		return lock.NewMemoryLocker(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr: a.cfg.Lock.RedisAddr,
		DB:   a.cfg.Lock.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Lock.RedisAddr, err)
	}
	return lock.NewRedisLocker(a.redis, a.cfg.Lock.TTL, a.log), nil
}

// close drains the runner, then releases connections
func (a *app) close() {
	if a.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.pool.Stop(ctx); err != nil {
			a.log.WithError(err).Warn("Runner did not drain before shutdown")
		}
		cancel()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.log.WithError(err).Warn("Failed to close database")
		}
	}
}
