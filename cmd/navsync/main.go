package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var version = "0.1.0"

// exitConfigChanged asks a supervisor to restart navsync with the new config.
const exitConfigChanged = 3

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:    "navsync",
		Usage:   "Show what you are playing on Navidrome as your Discord status",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default: <user config dir>/navsync/config.toml)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the now playing view in the terminal while syncing",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			doctorCommand(),
			cacheCommand(),
		},
		Action: runSync,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "navsync: %v\n", err)
		os.Exit(1)
	}
}
