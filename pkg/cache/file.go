package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/lborres/folio/core"
)

const defaultFilePath = "~/.local/share/folio/cache.toml"

var _ core.DurableCache = (*FileCache)(nil)

// FileCache is a core.DurableCache persisted as a TOML table of strings.
// Every write rewrites the file through a temp file and rename, so a crash
// leaves either the old or the new contents.
type FileCache struct {
	path string

	mu      sync.Mutex
	entries map[string]string
	loaded  bool
}

type fileContents struct {
	Entries map[string]string `toml:"entries"`
}

// NewFileCache returns a cache stored at path ("~" is expanded). An empty
// path uses ~/.local/share/folio/cache.toml.
func NewFileCache(path string) (*FileCache, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultFilePath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	return &FileCache{path: resolved}, nil
}

// Path returns the resolved file location.
func (f *FileCache) Path() string {
	return f.path
}

func (f *FileCache) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return "", err
	}
	value, ok := f.entries[key]
	if !ok {
		return "", core.ErrCacheNotFound
	}
	return value, nil
}

func (f *FileCache) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	f.entries[key] = value
	return f.flush()
}

func (f *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.entries[key]; !ok {
		return nil
	}
	delete(f.entries, key)
	return f.flush()
}

// load reads the file once. A missing file is an empty cache; an unreadable
// one is too, since the cache only ever holds data that can be rebuilt.
func (f *FileCache) load() error {
	if f.loaded {
		return nil
	}
	f.entries = make(map[string]string)
	f.loaded = true

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache: %w", err)
	}

	var contents fileContents
	if err := toml.Unmarshal(data, &contents); err != nil {
		return nil // Graceful degradation
	}
	for k, v := range contents.Entries {
		f.entries[k] = v
	}
	return nil
}

func (f *FileCache) flush() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := toml.Marshal(fileContents{Entries: f.entries})
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.toml")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
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
