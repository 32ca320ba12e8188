package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/navsync/navsync/internal/albummeta"
	"github.com/navsync/navsync/internal/artwork"
	"github.com/navsync/navsync/internal/config"
	"github.com/navsync/navsync/internal/httpclient"
	"github.com/navsync/navsync/internal/imagehost"
	"github.com/navsync/navsync/internal/logging"
	"github.com/navsync/navsync/internal/metrics"
	"github.com/navsync/navsync/internal/providers/subsonic"
	"github.com/navsync/navsync/internal/store"
)

// services holds everything built from the config that more than one command
// needs.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	source  *subsonic.Client
	backend store.Backend
	albums  *albummeta.Cache
	covers  *artwork.Pipeline
	host    imagehost.Uploader
}

func setupLogger(cfg *config.Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	return logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Path(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    console,
	})
}

func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	m := metrics.New()

	source, err := newSource(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.General.CacheBackend, err)
	}
	host, err := newUploader(cfg, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	albums := albummeta.New(albummeta.Options{
		Source:   source,
		Versions: store.Open(ctx, backend, store.NamespaceAlbumVersions, logger),
		Logger:   logger,
		Metrics:  m,
	})
	covers, err := artwork.New(artwork.Options{
		Source:   source,
		Uploader: host,
		URLs:     store.Open(ctx, backend, store.NamespaceCoverURLs, logger),
		Optimizer: artwork.Optimizer{
			MaxSize:  cfg.Image.MaxSize,
			Quality:  cfg.Image.JPEGQuality,
			MaxBytes: cfg.Image.MaxFileBytes,
		},
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &services{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		source:  source,
		backend: backend,
		albums:  albums,
		covers:  covers,
		host:    host,
	}, nil
}

func (s *services) Close() error {
	return s.backend.Close()
}

func newSource(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*subsonic.Client, error) {
	nav := cfg.Navidrome
	return subsonic.New(subsonic.Config{
		BaseURL:    nav.BaseURL,
		Username:   nav.Username,
		Password:   nav.Password,
		ClientName: nav.ClientName,
		APIVersion: nav.APIVersion,
		Timeout:    cfg.RequestTimeout(),
		HTTPClient: httpclient.New(httpclient.Options{
			RequestsPerSecond: cfg.General.RequestsPerSecond,
			Logger:            logger,
		}),
		Logger:  logger,
		Metrics: m,
	})
}

func newBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	g := cfg.General
	return store.NewBackend(ctx, store.Options{
		Backend: g.CacheBackend,
		Files: map[string]string{
			store.NamespaceAlbumVersions: cfg.Path(g.AlbumCacheFile),
			store.NamespaceCoverURLs:     cfg.Path(g.CacheFile),
		},
		SQLitePath: cfg.Path(g.SQLitePath),
		Redis: store.RedisOptions{
			Addr:     g.RedisAddr,
			Password: g.RedisPassword,
			DB:       g.RedisDB,
		},
	})
}

func newUploader(cfg *config.Config, logger *slog.Logger) (imagehost.Uploader, error) {
	in := cfg.Integration
	if in.ImageHost == config.HostS3 {
		s3, err := imagehost.NewS3(imagehost.S3Options{
			Endpoint:      in.S3.Endpoint,
			AccessKey:     in.S3.AccessKey,
			SecretKey:     in.S3.SecretKey,
			Bucket:        in.S3.Bucket,
			UseSSL:        in.S3.UseSSL,
			PublicBaseURL: in.S3.PublicBaseURL,
			Prefix:        in.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return imagehost.NewImgur(imagehost.ImgurOptions{
		ClientID:   in.ImgurClientID,
		HTTPClient: httpclient.New(httpclient.Options{Logger: logger}),
	}), nil
}
