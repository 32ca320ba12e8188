package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/navsync/navsync/internal/config"
	"github.com/navsync/navsync/internal/presence/discord"
	"github.com/navsync/navsync/internal/store"
)

const discordProbeTimeout = 3 * time.Second

func doctorCommand() *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "Check configuration, server login, Discord and caches",
		Action: runDoctor,
	}
}

func runDoctor(ctx context.Context, cmd *cli.Command) error {
	fmt.Println("navsync doctor")

	cfg, cfgPath, err := config.Load(cmd.String("config"))
	if err != nil {
		fmt.Printf("Config file (%s): ERROR - %v\n", cfgPath, err)
		return cli.Exit("", 1)
	}
	fmt.Printf("Config file: OK (%s)\n", cfgPath)
	for _, w := range config.Warnings(*cfg) {
		fmt.Printf("  warning: %s\n", w)
	}

	logger, closer, err := setupLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("Services: ERROR - %v\n", err)
		return cli.Exit("", 1)
	}
	defer svc.Close()

	failed := false

	pingCtx, cancel := cfg.DeadlineContext(ctx)
	err = svc.source.Ping(pingCtx)
	cancel()
	if err != nil {
		failed = true
		fmt.Printf("Navidrome (%s): ERROR - %v\n", cfg.Navidrome.BaseURL, err)
	} else {
		fmt.Printf("Navidrome: OK (%s as %s)\n", cfg.Navidrome.BaseURL, cfg.Navidrome.Username)
	}

	if err := probeDiscord(ctx, cfg, logger); err != nil {
		fmt.Printf("Discord: NOT AVAILABLE - %v\n", err)
	} else {
		fmt.Println("Discord: OK")
	}

	fmt.Printf("Image host: %s\n", svc.host.Name())
	fmt.Printf("Cache backend: %s\n", svc.backend.Name())
	for _, ns := range store.Namespaces {
		line, err := describeCache(ctx, svc.backend, ns)
		if err != nil {
			failed = true
			fmt.Printf("  %s: ERROR - %v\n", ns, err)
			continue
		}
		fmt.Printf("  %s\n", line)
	}

	logger.Info("doctor complete", slog.Bool("failed", failed))
	if failed {
		return cli.Exit("doctor found problems", 1)
	}
	return nil
}

// probeDiscord connects once without retries and closes again.
func probeDiscord(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, discordProbeTimeout)
	defer cancel()
	client := discord.New(discord.Options{
		ClientID:   cfg.Integration.DiscordClientID,
		Logger:     logger,
		MaxRetries: 1,
	})
	if err := client.Connect(ctx); err != nil {
		return err
	}
	return client.Close()
}

func describeCache(ctx context.Context, backend store.Backend, ns string) (string, error) {
	entries, err := backend.Load(ctx, ns)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("%s: %s entries", ns, humanize.Comma(int64(len(entries))))
	if files, ok := backend.(*store.JSONFiles); ok {
		if path, err := files.Path(ns); err == nil {
			if info, err := os.Stat(path); err == nil {
				line += fmt.Sprintf(", %s, modified %s (%s)",
					humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()), path)
			}
		}
	}
	return line, nil
}
