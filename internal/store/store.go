// Package store persists small string maps (album versions, hosted cover URLs)
// through a pluggable backend. Every write rewrites the whole namespace.
package store

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"sync"
)

const (
	NamespaceAlbumVersions = "album_versions"
	NamespaceCoverURLs     = "cover_urls"
)

// Namespaces lists every namespace navsync persists.
var Namespaces = []string{NamespaceAlbumVersions, NamespaceCoverURLs}

// Backend stores whole namespaces. Save replaces the namespace's content.
type Backend interface {
	Name() string
	Load(ctx context.Context, ns string) (map[string]string, error)
	Save(ctx context.Context, ns string, entries map[string]string) error
	Clear(ctx context.Context, ns string) error
	Close() error
}

// Cache is an in-memory map mirrored to a Backend namespace. Load and save
// failures are logged and never returned: a cache that cannot be read starts
// empty, and a write that cannot be saved stays in memory.
type Cache struct {
	mu      sync.Mutex
	ns      string
	backend Backend
	entries map[string]string
	logger  *slog.Logger
}

// Open loads ns from backend.
func Open(ctx context.Context, backend Backend, ns string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Cache{ns: ns, backend: backend, logger: logger, entries: map[string]string{}}
	entries, err := backend.Load(ctx, ns)
	if err != nil {
		logger.Warn("cache load failed, starting empty",
			slog.String("cache", ns),
			slog.String("backend", backend.Name()),
			slog.Any("err", err))
		return c
	}
	if entries != nil {
		c.entries = entries
	}
	logger.Debug("cache loaded", slog.String("cache", ns), slog.Int("entries", len(c.entries)))
	return c
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores value and flushes the namespace before returning.
func (c *Cache) Set(ctx context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	if err := c.backend.Save(ctx, c.ns, c.entries); err != nil {
		c.logger.Warn("cache save failed",
			slog.String("cache", c.ns),
			slog.String("backend", c.backend.Name()),
			slog.Any("err", err))
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of the entries.
func (c *Cache) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.entries)
}

// Clear empties the cache and its backend namespace.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]string{}
	return c.backend.Clear(ctx, c.ns)
}
