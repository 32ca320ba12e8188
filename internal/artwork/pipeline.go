// Package artwork fetches cover art from the music server, shrinks it, and
// publishes it through an image host. It also renders covers for the terminal
// status view.
package artwork

import (
	"context"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/navsync/navsync/internal/imagehost"
	"github.com/navsync/navsync/internal/metrics"
	"github.com/navsync/navsync/internal/store"
	"github.com/navsync/navsync/internal/track"
)

const DefaultMemoryEntries = 128

type CoverSource interface {
	CoverArt(ctx context.Context, id string) ([]byte, bool)
}

type Options struct {
	Source   CoverSource
	Uploader imagehost.Uploader
	// URLs is the persisted album title -> hosted URL map.
	URLs      *store.Cache
	Optimizer Optimizer
	// MemoryEntries bounds the album title -> optimized bytes cache.
	MemoryEntries int
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Pipeline caches covers by album title. Hosted URLs are persisted and never
// invalidated; optimized bytes live in memory.
type Pipeline struct {
	source    CoverSource
	uploader  imagehost.Uploader
	urls      *store.Cache
	optimizer Optimizer
	images    *lru.Cache[string, []byte]
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func New(opts Options) (*Pipeline, error) {
	if opts.MemoryEntries <= 0 {
		opts.MemoryEntries = DefaultMemoryEntries
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	images, err := lru.New[string, []byte](opts.MemoryEntries)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		source:    opts.Source,
		uploader:  opts.Uploader,
		urls:      opts.URLs,
		optimizer: opts.Optimizer.withDefaults(),
		images:    images,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// GetOrUpload returns the hosted URL and optimized bytes for the snapshot's
// cover. Either may be absent ("" or nil).
func (p *Pipeline) GetOrUpload(ctx context.Context, s *track.Snapshot) (string, []byte) {
	if s == nil || s.Album == "" || s.CoverID == "" {
		return "", nil
	}
	album := s.Album
	log := p.logger.With(slog.String("album", album))

	if data, ok := p.images.Get(album); ok {
		url, _ := p.urls.Get(album)
		p.metrics.Cover("memory_hit")
		return url, data
	}

	if url, ok := p.urls.Get(album); ok && url != "" {
		p.metrics.Cover("url_hit")
		data := p.fetch(ctx, s.CoverID, log)
		if data != nil {
			p.images.Add(album, data)
		}
		return url, data
	}

	data := p.fetch(ctx, s.CoverID, log)
	if data == nil {
		p.metrics.Cover("unavailable")
		return "", nil
	}
	p.images.Add(album, data)

	if p.uploader == nil {
		p.metrics.Cover("local_only")
		return "", data
	}
	url, err := p.uploader.Upload(ctx, data)
	if err != nil {
		log.Warn("cover upload failed", slog.String("host", p.uploader.Name()), slog.Any("err", err))
		p.metrics.Cover("upload_failed")
		return "", data
	}
	p.urls.Set(ctx, album, url)
	log.Info("cover uploaded", slog.String("host", p.uploader.Name()), slog.String("url", url))
	p.metrics.Cover("uploaded")
	return url, data
}

// fetch downloads and optimizes a cover, returning nil on any failure.
func (p *Pipeline) fetch(ctx context.Context, coverID string, log *slog.Logger) []byte {
	raw, ok := p.source.CoverArt(ctx, coverID)
	if !ok {
		log.Warn("could not download cover art", slog.String("cover_id", coverID))
		return nil
	}
	out, err := p.optimizer.Optimize(raw)
	if err != nil {
		log.Warn("cover optimization failed", slog.String("original", humanize.Bytes(uint64(len(raw)))), slog.Any("err", err))
		return nil
	}
	log.Debug("cover optimized",
		slog.String("original", humanize.Bytes(uint64(len(raw)))),
		slog.String("optimized", humanize.Bytes(uint64(len(out.Data)))),
		slog.Int("width", out.Width),
		slog.Int("height", out.Height),
		slog.Bool("resized", out.Resized))
	return out.Data
}

// Cached returns the in-memory bytes for an album title, if any.
func (p *Pipeline) Cached(album string) ([]byte, bool) {
	return p.images.Peek(album)
}
