//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Flatpak and snap builds put the socket in a subdirectory of the runtime dir.
var socketSubdirs = []string{"", "app/com.discordapp.Discord", "snap.discord"}

func dialIPC(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	var lastErr error
	for _, p := range socketPaths(os.Getenv) {
		conn, err := d.DialContext(ctx, "unix", p)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrNoDiscord, lastErr)
}

func socketPaths(getenv func(string) string) []string {
	var dirs []string
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := getenv(key); v != "" {
			dirs = append(dirs, v)
		}
	}
	dirs = append(dirs, "/tmp")

	seen := make(map[string]bool)
	var paths []string
	for _, dir := range dirs {
		for _, sub := range socketSubdirs {
			for i := 0; i < 10; i++ {
				p := filepath.Join(dir, sub, fmt.Sprintf("discord-ipc-%d", i))
				if !seen[p] {
					seen[p] = true
					paths = append(paths, p)
				}
			}
		}
	}
	return paths
}
