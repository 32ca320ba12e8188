package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/urfave/cli/v3"

	"github.com/navsync/navsync/internal/config"
	"github.com/navsync/navsync/internal/presence"
	"github.com/navsync/navsync/internal/presence/discord"
	"github.com/navsync/navsync/internal/status"
	"github.com/navsync/navsync/internal/syncloop"
	"github.com/navsync/navsync/internal/track"
	"github.com/navsync/navsync/internal/ui"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Poll Navidrome and publish to Discord (the default)",
		Action: runSync,
	}
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	cfg, cfgPath, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	tui := cmd.Bool("tui")

	// The status view owns the terminal, so logs go to the file only.
	var console io.Writer = os.Stderr
	if tui {
		console = nil
	}
	logger, closer, err := setupLogger(cfg, console)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("navsync starting",
		slog.String("version", version),
		slog.String("config", cfgPath),
		slog.String("server", cfg.Navidrome.BaseURL),
		slog.String("cache_backend", cfg.General.CacheBackend),
		slog.String("image_host", cfg.Integration.ImageHost))
	for _, w := range config.Warnings(*cfg) {
		logger.Warn(w)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	board := status.NewBoard()
	display := discord.New(discord.Options{
		ClientID: cfg.Integration.DiscordClientID,
		Logger:   logger,
	})
	pub := presence.New(presence.Options{
		Display:   display,
		AssetName: cfg.Integration.DiscordAssetName,
		Logger:    logger,
		Metrics:   svc.metrics,
	})
	loop := syncloop.New(syncloop.Options{
		Source: svc.source,
		Normalize: track.Options{
			TrackComment: cfg.General.TrackComment,
			AlbumVersion: cfg.AlbumVersionEnabled(),
			Albums:       svc.albums,
		},
		Covers:          svc.covers,
		Presence:        pub,
		Observer:        board,
		PlayingInterval: cfg.PlayingInterval(),
		IdleInterval:    cfg.IdleInterval(),
		IgnoredArtists:  cfg.General.IgnoredArtists,
		Logger:          logger,
		Metrics:         svc.metrics,
	})

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := svc.metrics.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Error("metrics server stopped", slog.Any("err", err))
			}
		}()
	}

	var restart atomic.Bool
	if cfg.WatchEnabled() {
		go func() {
			err := config.Watch(ctx, cfgPath, func() {
				logger.Info("config changed, restarting")
				restart.Store(true)
				cancel()
			})
			if err != nil {
				logger.Warn("config watch stopped", slog.Any("err", err))
			}
		}()
	}

	tuiDone := make(chan struct{})
	if tui {
		theme := ui.GetTheme(cfg.UI.Theme, os.Getenv("NO_COLOR") != "")
		go func() {
			defer close(tuiDone)
			if err := status.Run(ctx, board, theme); err != nil {
				logger.Error("status view failed", slog.Any("err", err))
			}
			cancel()
		}()
	} else {
		close(tuiDone)
	}

	err = loop.Run(ctx)
	cancel()
	<-tuiDone
	if err != nil {
		return err
	}
	if restart.Load() {
		return cli.Exit("config changed, restarting", exitConfigChanged)
	}
	logger.Info("navsync stopped")
	return nil
}
