// Package config loads engine configuration from a YAML file with
// OPENCOMMOTION_* environment overrides.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// Config is the full engine configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Policy   scene.Policy   `yaml:"policy"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	AuthToken   string        `yaml:"auth_token"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// StorageConfig selects the snapshot backend: "memory", "file", or "redis".
// EncryptionKey, when set, enables AES-256-GCM encryption of snapshot blobs
// at rest; it must be 64 hex characters. FallbackKeys hold previous keys so
// old snapshots stay readable across a rotation.
type StorageConfig struct {
	Backend       string   `yaml:"backend"`
	FilePath      string   `yaml:"file_path"`
	Autosave      *bool    `yaml:"autosave"`
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`
}

// RedisConfig configures the redis backend when selected.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig bounds the idempotency cache.
type CacheConfig struct {
	TurnsPerSession int           `yaml:"turns_per_session"`
	TTL             time.Duration `yaml:"ttl"`
}

// RealtimeConfig bounds realtime delivery.
type RealtimeConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	autosave := true
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			LockTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  "memory",
			FilePath: ".opencommotion/snapshots",
			Autosave: &autosave,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Cache: CacheConfig{
			TurnsPerSession: 64,
			TTL:             15 * time.Minute,
		},
		Realtime: RealtimeConfig{
			BufferSize: 32,
		},
		Policy:   scene.DefaultPolicy(),
		LogLevel: "info",
	}
}

// Load reads the config file at path, falling back to defaults when the file
// is absent, then applies environment overrides. An unreadable or malformed
// file is an error; a missing one is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENCOMMOTION_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("OPENCOMMOTION_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("OPENCOMMOTION_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("OPENCOMMOTION_STORAGE_PATH"); v != "" {
		cfg.Storage.FilePath = v
	}
	if v := os.Getenv("OPENCOMMOTION_ENCRYPTION_KEY"); v != "" {
		cfg.Storage.EncryptionKey = v
	}
	if v := os.Getenv("OPENCOMMOTION_REDIS_ADDR"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("OPENCOMMOTION_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OPENCOMMOTION_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("OPENCOMMOTION_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	if c.Storage.EncryptionKey != "" {
		if _, err := DecodeKey(c.Storage.EncryptionKey); err != nil {
			return fmt.Errorf("invalid encryption key: %w", err)
		}
		for i, fk := range c.Storage.FallbackKeys {
			if _, err := DecodeKey(fk); err != nil {
				return fmt.Errorf("invalid fallback key %d: %w", i, err)
			}
		}
	}
	return nil
}

// DecodeKey parses a hex-encoded AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
