// Package config loads the folio CLI configuration from a TOML file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigPath = "~/.config/folio/config.toml"
	DefaultCachePath  = "~/.local/share/folio/cache.toml"
	DefaultBridgeAddr = "127.0.0.1:7490"

	StoreMemory   = "memory"
	StorePostgres = "postgres"

	CacheFile   = "file"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type Config struct {
	Log    LogConfig    `toml:"log"`
	Store  StoreConfig  `toml:"store"`
	Cache  CacheConfig  `toml:"cache"`
	Auth   AuthConfig   `toml:"auth"`
	Books  BooksConfig  `toml:"books"`
	Bridge BridgeConfig `toml:"bridge"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StoreConfig selects where favorites and profiles live.
type StoreConfig struct {
	Driver      string `toml:"driver"` // memory or postgres
	DatabaseURL string `toml:"database_url"`
	Migrate     bool   `toml:"migrate"`
}

// CacheConfig selects the durable cache behind the session snapshot and the
// local auth authority.
type CacheConfig struct {
	Driver        string `toml:"driver"` // file, redis or memory
	Path          string `toml:"path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

type AuthConfig struct {
	TokenTTL            time.Duration `toml:"-"`
	TokenTTLRaw         string        `toml:"token_ttl"`
	MinPassword         int           `toml:"min_password"`
	RequireConfirmation bool          `toml:"require_confirmation"`
}

type BooksConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	MaxResults int    `toml:"max_results"`
}

type BridgeConfig struct {
	Addr     string `toml:"addr"`
	BasePath string `toml:"base_path"`
}

func defaults() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Store:  StoreConfig{Driver: StoreMemory},
		Cache:  CacheConfig{Driver: CacheFile, Path: DefaultCachePath},
		Auth:   AuthConfig{TokenTTL: time.Hour},
		Books:  BooksConfig{MaxResults: 20},
		Bridge: BridgeConfig{Addr: DefaultBridgeAddr, BasePath: "/api"},
	}
}

// Load reads path (DefaultConfigPath when empty), falling back to defaults
// when the file does not exist, then applies FOLIO_* and LOG_* variables.
// Variables from .env files named in envFiles are loaded first; a missing
// .env file is skipped.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadEnv(envFiles); err != nil {
		return Config{}, err
	}

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnv(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setString(&cfg.Store.Driver, "FOLIO_STORE")
	setString(&cfg.Store.DatabaseURL, "FOLIO_DATABASE_URL")
	setBool(&cfg.Store.Migrate, "FOLIO_MIGRATE")

	setString(&cfg.Cache.Driver, "FOLIO_CACHE")
	setString(&cfg.Cache.Path, "FOLIO_CACHE_PATH")
	setString(&cfg.Cache.RedisAddr, "FOLIO_REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "FOLIO_REDIS_PASSWORD")
	setInt(&cfg.Cache.RedisDB, "FOLIO_REDIS_DB")

	setString(&cfg.Auth.TokenTTLRaw, "FOLIO_TOKEN_TTL")

	setString(&cfg.Books.BaseURL, "FOLIO_BOOKS_BASE_URL")
	setString(&cfg.Books.APIKey, "FOLIO_BOOKS_API_KEY")

	setString(&cfg.Bridge.Addr, "FOLIO_BRIDGE_ADDR")
}

func (c *Config) normalize() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return fmt.Errorf("store.database_url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))
	switch c.Cache.Driver {
	case CacheMemory:
	case CacheFile:
		if strings.TrimSpace(c.Cache.Path) == "" {
			c.Cache.Path = DefaultCachePath
		}
		c.Cache.Path = mustExpand(c.Cache.Path)
	case CacheRedis:
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	if raw := strings.TrimSpace(c.Auth.TokenTTLRaw); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("auth.token_ttl %q is not a positive duration", raw)
		}
		c.Auth.TokenTTL = ttl
	}

	if strings.TrimSpace(c.Bridge.Addr) == "" {
		c.Bridge.Addr = DefaultBridgeAddr
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(DefaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
