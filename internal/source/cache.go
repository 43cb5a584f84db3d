// Package source supplies datasets to the pipeline from network, disk,
// or a deterministic synthetic generator, with a TTL disk cache in front
// of the network fetch.
package source

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/epi-analytics/go-covid-analytics/internal/errors"
)

// Cache is a disk-backed byte cache with a single TTL. Freshness is
// judged from the cached file's modification time, so entries survive
// process restarts. A zero TTL means entries never expire.
type Cache struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache creates a cache rooted at dir, creating the directory if
// needed.
func NewCache(dir string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewCacheError("init", err)
	}
	return &Cache{dir: dir, ttl: ttl, logger: logger.With("component", "cache")}, nil
}

// Get returns the cached bytes for key if present and fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		c.logger.Debug("cache entry expired", "key", key, "age", time.Since(info.ModTime()))
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key, "bytes", len(data))
	return data, true
}

// Put stores data under key. The write goes through a temp file and
// rename so a crash never leaves a torn entry behind.
func (c *Cache) Put(key string, data []byte) error {
	path := c.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.NewCacheError("put", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.NewCacheError("put", err)
	}
	c.logger.Debug("cache entry written", "key", key, "bytes", len(data))
	return nil
}

// Invalidate removes the entry for key. Removing an absent entry is not
// an error.
func (c *Cache) Invalidate(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.NewCacheError("invalidate", err)
	}
	return nil
}

// Clear removes every cached entry.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return apperrors.NewCacheError("clear", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return apperrors.NewCacheError("clear", err)
		}
	}
	return nil
}

func (c *Cache) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(c.dir, safe+".csv")
}
