// Package albummeta resolves per-album facts the now-playing entry lacks:
// the version string used to annotate album names and the release info used
// to classify singles.
package albummeta

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/navsync/navsync/internal/metrics"
	"github.com/navsync/navsync/internal/provider"
	"github.com/navsync/navsync/internal/store"
)

// AlbumFetcher is the part of provider.Source this package uses.
type AlbumFetcher interface {
	Album(ctx context.Context, id string) (*provider.Album, bool)
}

type Options struct {
	Source AlbumFetcher
	// Versions is the persisted albumID -> version map.
	Versions *store.Cache
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type release struct {
	info provider.ReleaseInfo
	ok   bool
}

// Cache resolves each album id at most once. Version strings are persisted;
// release info lives for the process.
type Cache struct {
	source   AlbumFetcher
	versions *store.Cache
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	releases map[string]release
}

func New(opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		source:   opts.Source,
		versions: opts.Versions,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		releases: map[string]release{},
	}
}

// VersionComment returns the album's version or comment string. An empty
// result is cached like any other; a failed fetch is not, so a later poll
// retries it.
func (c *Cache) VersionComment(ctx context.Context, albumID string) string {
	if albumID == "" {
		return ""
	}
	if v, ok := c.versions.Get(albumID); ok {
		c.metrics.CacheHit("album_version")
		return v
	}
	c.metrics.CacheMiss("album_version")

	album, ok := c.source.Album(ctx, albumID)
	if !ok {
		c.logger.Debug("album version unavailable", slog.String("album_id", albumID))
		return ""
	}
	v := album.VersionComment()
	c.versions.Set(ctx, albumID, v)
	if v != "" {
		c.logger.Debug("album version resolved", slog.String("album_id", albumID), slog.String("version", v))
	}
	return v
}

// ReleaseInfo returns the album's release types or song count. The outcome
// is cached for the process, absence and fetch failures included.
func (c *Cache) ReleaseInfo(ctx context.Context, albumID string) (provider.ReleaseInfo, bool) {
	if albumID == "" {
		return provider.ReleaseInfo{}, false
	}
	c.mu.Lock()
	r, hit := c.releases[albumID]
	c.mu.Unlock()
	if hit {
		c.metrics.CacheHit("release_info")
		return r.info, r.ok
	}
	c.metrics.CacheMiss("release_info")

	if album, ok := c.source.Album(ctx, albumID); ok {
		r.info, r.ok = album.ReleaseInfo()
	}
	c.mu.Lock()
	c.releases[albumID] = r
	c.mu.Unlock()
	return r.info, r.ok
}

// Releases reports how many albums have resolved release info.
func (c *Cache) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.releases)
}
