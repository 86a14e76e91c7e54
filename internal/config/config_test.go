package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "LOG_FORMAT",
		"FOLIO_STORE", "FOLIO_DATABASE_URL", "FOLIO_MIGRATE",
		"FOLIO_CACHE", "FOLIO_CACHE_PATH", "FOLIO_REDIS_ADDR", "FOLIO_REDIS_PASSWORD", "FOLIO_REDIS_DB",
		"FOLIO_TOKEN_TTL", "FOLIO_BOOKS_BASE_URL", "FOLIO_BOOKS_API_KEY", "FOLIO_BRIDGE_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.Driver != StoreMemory || cfg.Cache.Driver != CacheFile {
		t.Fatalf("drivers = %q/%q, want memory/file", cfg.Store.Driver, cfg.Cache.Driver)
	}
	wantCache, err := expandPath(DefaultCachePath)
	if err != nil {
		t.Fatalf("expandPath(DefaultCachePath) returned error: %v", err)
	}
	if cfg.Cache.Path != wantCache {
		t.Fatalf("Cache.Path = %q, want %q", cfg.Cache.Path, wantCache)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("TokenTTL = %v, want 1h", cfg.Auth.TokenTTL)
	}
	if cfg.Bridge.Addr != DefaultBridgeAddr {
		t.Fatalf("Bridge.Addr = %q, want %q", cfg.Bridge.Addr, DefaultBridgeAddr)
	}
}

func TestLoad_ParsesSections(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	path := writeConfig(t, `
[log]
level = "debug"
format = "json"

[store]
driver = "Postgres"
database_url = "postgres://folio@localhost/folio"
migrate = true

[cache]
driver = "file"
path = "~/folio/cache.toml"

[auth]
token_ttl = "15m"
min_password = 8

[books]
api_key = "abc"
max_results = 10

[bridge]
addr = "127.0.0.1:9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Store.Driver != StorePostgres || !cfg.Store.Migrate {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if !strings.HasPrefix(cfg.Cache.Path, home) {
		t.Errorf("Cache.Path = %q, want it under HOME %q", cfg.Cache.Path, home)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute || cfg.Auth.MinPassword != 8 {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Books.APIKey != "abc" || cfg.Books.MaxResults != 10 {
		t.Errorf("Books = %+v", cfg.Books)
	}
	if cfg.Bridge.Addr != "127.0.0.1:9000" || cfg.Bridge.BasePath != "/api" {
		t.Errorf("Bridge = %+v", cfg.Bridge)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("FOLIO_CACHE", "redis")
	t.Setenv("FOLIO_REDIS_ADDR", "localhost:6379")
	t.Setenv("FOLIO_REDIS_DB", "2")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("FOLIO_TOKEN_TTL", "2h")

	path := writeConfig(t, `
[log]
level = "debug"

[cache]
driver = "file"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Cache.Driver != CacheRedis || cfg.Cache.RedisAddr != "localhost:6379" || cfg.Cache.RedisDB != 2 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("TokenTTL = %v, want 2h", cfg.Auth.TokenTTL)
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	os.Unsetenv("FOLIO_BOOKS_API_KEY")

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("FOLIO_BOOKS_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"), envFile, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Books.APIKey != "from-dotenv" {
		t.Errorf("Books.APIKey = %q, want from-dotenv", cfg.Books.APIKey)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "postgres without url", body: "[store]\ndriver = \"postgres\"\n", wantErr: "database_url is required"},
		{name: "unknown store", body: "[store]\ndriver = \"sqlite\"\n", wantErr: "unknown store driver"},
		{name: "redis without addr", body: "[cache]\ndriver = \"redis\"\n", wantErr: "redis_addr is required"},
		{name: "unknown cache", body: "[cache]\ndriver = \"etcd\"\n", wantErr: "unknown cache driver"},
		{name: "bad token ttl", body: "[auth]\ntoken_ttl = \"soon\"\n", wantErr: "token_ttl"},
		{name: "malformed toml", body: "[store\n", wantErr: "parse config"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			clearEnv(t)

			_, err := Load(writeConfig(t, test.body))
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Load error = %v, want containing %q", err, test.wantErr)
			}
		})
	}
}
