package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/navsync/navsync/internal/config"
	"github.com/navsync/navsync/internal/store"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or reset the album version and cover URL caches",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Print cached entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "namespace",
						Usage: "Only this cache (" + strings.Join(store.Namespaces, ", ") + ")",
					},
				},
				Action: listCache,
			},
			{
				Name:  "clear",
				Usage: "Delete cached entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "namespace",
						Usage: "Only this cache (" + strings.Join(store.Namespaces, ", ") + ")",
					},
				},
				Action: clearCache,
			},
		},
	}
}

// openCache loads config and opens the backend without touching the server.
func openCache(ctx context.Context, cmd *cli.Command) (store.Backend, []string, *slog.Logger, func(), error) {
	cfg, _, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	namespaces := store.Namespaces
	if ns := cmd.String("namespace"); ns != "" {
		if !slices.Contains(store.Namespaces, ns) {
			return nil, nil, nil, nil, fmt.Errorf("unknown cache %q", ns)
		}
		namespaces = []string{ns}
	}
	logger, closer, err := setupLogger(cfg, nil)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		closer.Close()
		return nil, nil, nil, nil, err
	}
	done := func() {
		backend.Close()
		closer.Close()
	}
	return backend, namespaces, logger, done, nil
}

func listCache(ctx context.Context, cmd *cli.Command) error {
	backend, namespaces, _, done, err := openCache(ctx, cmd)
	if err != nil {
		return err
	}
	defer done()

	for _, ns := range namespaces {
		entries, err := backend.Load(ctx, ns)
		if err != nil {
			return fmt.Errorf("load %s: %w", ns, err)
		}
		fmt.Printf("%s (%s entries, %s backend)\n", ns, humanize.Comma(int64(len(entries))), backend.Name())
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, entries[k])
		}
	}
	return nil
}

func clearCache(ctx context.Context, cmd *cli.Command) error {
	backend, namespaces, logger, done, err := openCache(ctx, cmd)
	if err != nil {
		return err
	}
	defer done()

	for _, ns := range namespaces {
		if err := backend.Clear(ctx, ns); err != nil {
			return fmt.Errorf("clear %s: %w", ns, err)
		}
		logger.Info("cache cleared", slog.String("namespace", ns), slog.String("backend", backend.Name()))
		fmt.Printf("✓ cleared %s\n", ns)
	}
	return nil
}
