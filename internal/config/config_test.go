package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalTOML = `
[navidrome]
base_url = "https://music.example.com"
username = "me"
password_env = "NAVSYNC_TEST_PASSWORD"

[integration]
discord_client_id = "1234567890123456789"
imgur_client_id = "abcdef0123456"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() Config {
	cfg := Config{
		Navidrome:   NavidromeConfig{BaseURL: "https://music.example.com", Username: "me", Password: "pw"},
		Integration: IntegrationConfig{DiscordClientID: "1234567890123456789", ImgurClientID: "abcdef0123456"},
	}
	applyDefaults(&cfg)
	return cfg
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("NAVSYNC_TEST_PASSWORD", "hunter2")
	path := writeConfig(t, minimalTOML)

	cfg, got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != path {
		t.Errorf("expected path %s, got %s", path, got)
	}
	if cfg.Navidrome.Password != "hunter2" {
		t.Errorf("password should come from the environment, got %q", cfg.Navidrome.Password)
	}
	if cfg.Navidrome.ClientName != "nav-rpc" || cfg.Navidrome.APIVersion != "1.16.1" {
		t.Errorf("unexpected client defaults %+v", cfg.Navidrome)
	}
	if cfg.Image.MaxSize != 512 || cfg.Image.JPEGQuality != 85 || cfg.Image.MaxFileBytes != 4194304 {
		t.Errorf("unexpected image defaults %+v", cfg.Image)
	}
	if cfg.PlayingInterval() != 5*time.Second || cfg.IdleInterval() != 15*time.Second {
		t.Errorf("unexpected intervals %v %v", cfg.PlayingInterval(), cfg.IdleInterval())
	}
	if !cfg.AlbumVersionEnabled() || !cfg.WatchEnabled() || cfg.General.TrackComment {
		t.Error("unexpected toggle defaults")
	}
	if cfg.Integration.DiscordAssetName != "navidrome_logo" || cfg.Integration.ImageHost != HostImgur {
		t.Errorf("unexpected integration defaults %+v", cfg.Integration)
	}
	if want := filepath.Join(filepath.Dir(path), "cache.json"); cfg.Path(cfg.General.CacheFile) != want {
		t.Errorf("cache file should resolve next to the config, got %s", cfg.Path(cfg.General.CacheFile))
	}
}

func TestLoadExplicitFalse(t *testing.T) {
	path := writeConfig(t, minimalTOML+`
[general]
album_version = false
watch_config = false
track_comment = true
ignored_artists = ["White Noise"]
`)
	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AlbumVersionEnabled() || cfg.WatchEnabled() || !cfg.General.TrackComment {
		t.Error("explicit toggles were not honoured")
	}
	if len(cfg.General.IgnoredArtists) != 1 {
		t.Errorf("unexpected ignored artists %v", cfg.General.IgnoredArtists)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeConfig(t, minimalTOML)
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envFile, []byte("NAVSYNC_DOTENV_PASSWORD=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("NAVSYNC_DOTENV_PASSWORD") })

	body := strings.Replace(minimalTOML, "NAVSYNC_TEST_PASSWORD", "NAVSYNC_DOTENV_PASSWORD", 1)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Navidrome.Password != "from-dotenv" {
		t.Errorf("expected password from .env, got %q", cfg.Navidrome.Password)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, _, err := Load(writeConfig(t, "not = [valid")); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Errorf("expected parse error, got %v", err)
	}
	if _, _, err := Load(writeConfig(t, "[navidrome]\nusername = \"me\"\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.Navidrome.BaseURL = "" }, "base_url is required"},
		{"bad scheme", func(c *Config) { c.Navidrome.BaseURL = "ftp://music" }, "http(s)"},
		{"missing username", func(c *Config) { c.Navidrome.Username = "" }, "username"},
		{"missing discord id", func(c *Config) { c.Integration.DiscordClientID = "" }, "discord_client_id is required"},
		{"non numeric discord id", func(c *Config) { c.Integration.DiscordClientID = "12ab" }, "numeric"},
		{"missing imgur id", func(c *Config) { c.Integration.ImgurClientID = "" }, "imgur_client_id"},
		{"s3 without bucket", func(c *Config) { c.Integration.ImageHost = HostS3 }, "s3.endpoint"},
		{"s3 complete", func(c *Config) {
			c.Integration.ImageHost = HostS3
			c.Integration.S3 = S3Config{Endpoint: "minio:9000", Bucket: "covers", AccessKey: "a", SecretKey: "s"}
		}, ""},
		{"unknown host", func(c *Config) { c.Integration.ImageHost = "flickr" }, "image_host"},
		{"quality", func(c *Config) { c.Image.JPEGQuality = 101 }, "jpeg_quality"},
		{"interval", func(c *Config) { c.General.IdleIntervalSeconds = -1 }, "intervals"},
		{"backend", func(c *Config) { c.General.CacheBackend = "etcd" }, "cache_backend"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"theme", func(c *Config) { c.UI.Theme = "plaid" }, "ui.theme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	cfg := validConfig()
	if w := Warnings(cfg); len(w) != 0 {
		t.Errorf("expected no warnings, got %v", w)
	}
	cfg.Integration.DiscordClientID = "12345"
	cfg.Integration.ImgurClientID = "short"
	cfg.Navidrome.Password = ""
	w := Warnings(cfg)
	if len(w) != 3 {
		t.Fatalf("expected 3 warnings, got %v", w)
	}
	if !strings.Contains(w[0], "unusual length: 5") {
		t.Errorf("unexpected warning %q", w[0])
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("warnings must not fail validation: %v", err)
	}
}

func TestDeadlineContext(t *testing.T) {
	cfg := validConfig()
	cfg.General.RequestTimeoutMs = 1500
	ctx, cancel := cfg.DeadlineContext(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if left := time.Until(deadline); left > 1500*time.Millisecond || left < time.Second {
		t.Errorf("unexpected deadline in %v", left)
	}
}

func TestPath(t *testing.T) {
	cfg := Config{dir: "/etc/navsync"}
	if got := cfg.Path("cache.json"); got != filepath.Join("/etc/navsync", "cache.json") {
		t.Errorf("relative path resolved to %s", got)
	}
	abs := filepath.Join(string(filepath.Separator), "var", "lib", "navsync.db")
	if got := cfg.Path(abs); got != abs {
		t.Errorf("absolute path changed to %s", got)
	}
	if cfg.Path("") != "" {
		t.Error("empty path should stay empty")
	}
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, minimalTOML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() { changed <- struct{}{} })
	}()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	other := filepath.Join(filepath.Dir(path), "cache.json")
	if err := os.WriteFile(other, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(minimalTOML+"\n# edited\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change notification")
	}
	select {
	case <-changed:
		t.Error("a burst of edits should notify once")
	case <-time.After(2 * watchDebounce):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned %v", err)
	}
}
