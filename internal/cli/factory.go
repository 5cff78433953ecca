// Package cli assembles engines from configuration for the command surface.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/masltov-creations/opencommotion"
	"github.com/masltov-creations/opencommotion/internal/adapters/file"
	"github.com/masltov-creations/opencommotion/internal/adapters/memory"
	"github.com/masltov-creations/opencommotion/internal/adapters/redis"
	"github.com/masltov-creations/opencommotion/internal/config"
	"github.com/masltov-creations/opencommotion/internal/metrics"
	"github.com/masltov-creations/opencommotion/pkg/persistence/middleware"
	"github.com/masltov-creations/opencommotion/pkg/ports"
)

// BuildEngine wires an Engine from config. The returned cleanup closes any
// backend connections and must be called on shutdown.
func BuildEngine(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*opencommotion.Engine, func() error, error) {
	var (
		archive ports.SnapshotArchive
		cache   ports.ResultCache
		cleanup = func() error { return nil }
	)

	switch cfg.Storage.Backend {
	case "memory":
		archive = memory.NewSnapshotArchive()
		cache = memory.NewResultCache(
			memory.WithCacheSize(cfg.Cache.TurnsPerSession),
			memory.WithCacheTTL(cfg.Cache.TTL),
		)
	case "file":
		archive = file.New(cfg.Storage.FilePath)
		cache = memory.NewResultCache(
			memory.WithCacheSize(cfg.Cache.TurnsPerSession),
			memory.WithCacheTTL(cfg.Cache.TTL),
		)
	case "redis":
		redisArchive := redis.NewArchive(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		redisCache := redis.NewResultCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithCacheSize(cfg.Cache.TurnsPerSession),
			redis.WithCacheTTL(cfg.Cache.TTL),
		)
		archive = redisArchive
		cache = redisCache
		cleanup = func() error {
			if err := redisArchive.Close(); err != nil {
				return err
			}
			return redisCache.Close()
		}
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.EncryptionKey != "" {
		encConfig, err := encryptionConfig(cfg.Storage)
		if err != nil {
			return nil, nil, err
		}
		archive = middleware.Chain(archive, middleware.NewEncryptionMiddleware(encConfig))
	}

	opts := []opencommotion.Option{
		opencommotion.WithArchive(archive),
		opencommotion.WithResultCache(cache),
		opencommotion.WithPolicy(cfg.Policy),
		opencommotion.WithLogger(logger),
	}
	if cfg.Realtime.BufferSize > 0 {
		opts = append(opts, opencommotion.WithEventBuffer(cfg.Realtime.BufferSize))
	}
	if cfg.Server.LockTimeout > 0 {
		opts = append(opts, opencommotion.WithLockTimeout(cfg.Server.LockTimeout))
	}
	if m != nil {
		opts = append(opts, opencommotion.WithMetrics(m))
	}
	if cfg.Storage.Autosave != nil && !*cfg.Storage.Autosave {
		opts = append(opts, opencommotion.WithoutAutosave())
	}

	return opencommotion.New(opts...), cleanup, nil
}

func encryptionConfig(storage config.StorageConfig) (middleware.EncryptionConfig, error) {
	active, err := config.DecodeKey(storage.EncryptionKey)
	if err != nil {
		return middleware.EncryptionConfig{}, fmt.Errorf("encryption key: %w", err)
	}
	fallbacks := make([][]byte, 0, len(storage.FallbackKeys))
	for i, fk := range storage.FallbackKeys {
		key, err := config.DecodeKey(fk)
		if err != nil {
			return middleware.EncryptionConfig{}, fmt.Errorf("fallback key %d: %w", i, err)
		}
		fallbacks = append(fallbacks, key)
	}
	return middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallbacks}, nil
}
