package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/navsync/navsync/internal/ui"
)

// Config holds navsync runtime configuration loaded from TOML.
type Config struct {
	Navidrome   NavidromeConfig   `toml:"navidrome"`
	Integration IntegrationConfig `toml:"integration"`
	Image       ImageConfig       `toml:"image"`
	General     GeneralConfig     `toml:"general"`
	Log         LogConfig         `toml:"log"`
	Metrics     MetricsConfig     `toml:"metrics"`
	UI          UIConfig          `toml:"ui"`

	// dir is the config file's directory; relative paths resolve against it.
	dir string
}

type NavidromeConfig struct {
	BaseURL     string `toml:"base_url"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	PasswordEnv string `toml:"password_env"`
	ClientName  string `toml:"client_name"`
	APIVersion  string `toml:"api_version"`
}

type IntegrationConfig struct {
	DiscordClientID  string   `toml:"discord_client_id"`
	DiscordAssetName string   `toml:"discord_asset_name"`
	ImageHost        string   `toml:"image_host"` // imgur, s3
	ImgurClientID    string   `toml:"imgur_client_id"`
	S3               S3Config `toml:"s3"`
}

type S3Config struct {
	Endpoint      string `toml:"endpoint"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	SecretKeyEnv  string `toml:"secret_key_env"`
	Bucket        string `toml:"bucket"`
	UseSSL        bool   `toml:"use_ssl"`
	PublicBaseURL string `toml:"public_base_url"`
	Prefix        string `toml:"prefix"`
}

type ImageConfig struct {
	MaxSize      int `toml:"max_size"`
	JPEGQuality  int `toml:"jpeg_quality"`
	MaxFileBytes int `toml:"max_file_bytes"`
}

type GeneralConfig struct {
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	IdleIntervalSeconds int      `toml:"idle_interval_seconds"`
	RequestTimeoutMs    int      `toml:"request_timeout_ms"`
	RequestsPerSecond   float64  `toml:"requests_per_second"`
	IgnoredArtists      []string `toml:"ignored_artists"`
	TrackComment        bool     `toml:"track_comment"`
	// AlbumVersion and WatchConfig default to true when omitted.
	AlbumVersion   *bool  `toml:"album_version"`
	CacheBackend   string `toml:"cache_backend"` // json, sqlite, redis
	CacheFile      string `toml:"cache_file"`
	AlbumCacheFile string `toml:"album_cache_file"`
	SQLitePath     string `toml:"sqlite_path"`
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	WatchConfig    *bool  `toml:"watch_config"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

type UIConfig struct {
	Theme string `toml:"theme"`
}

const (
	HostImgur = "imgur"
	HostS3    = "s3"
)

var (
	knownBackends = []string{"json", "sqlite", "redis"}
	knownLevels   = []string{"debug", "info", "warn", "error"}
)

// Load reads configuration from disk. If path is empty, a default OS-specific
// location is used. A .env file next to the config is loaded first so that
// *_env settings can name variables defined there.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("parse config: %w", err)
	}
	cfg.dir = filepath.Dir(cfgPath)

	envFile := filepath.Join(cfg.dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, cfgPath, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	resolveSecrets(&cfg)
	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}
	return &cfg, cfgPath, nil
}

// DefaultPath is <user config dir>/navsync/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "navsync", "config.toml"), nil
}

func resolveSecrets(cfg *Config) {
	if cfg.Navidrome.Password == "" && cfg.Navidrome.PasswordEnv != "" {
		cfg.Navidrome.Password = os.Getenv(cfg.Navidrome.PasswordEnv)
	}
	if cfg.Integration.S3.SecretKey == "" && cfg.Integration.S3.SecretKeyEnv != "" {
		cfg.Integration.S3.SecretKey = os.Getenv(cfg.Integration.S3.SecretKeyEnv)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Navidrome.ClientName == "" {
		cfg.Navidrome.ClientName = "nav-rpc"
	}
	if cfg.Navidrome.APIVersion == "" {
		cfg.Navidrome.APIVersion = "1.16.1"
	}
	if cfg.Integration.DiscordAssetName == "" {
		cfg.Integration.DiscordAssetName = "navidrome_logo"
	}
	if cfg.Integration.ImageHost == "" {
		cfg.Integration.ImageHost = HostImgur
	}
	if cfg.Integration.S3.Prefix == "" {
		cfg.Integration.S3.Prefix = "covers/"
	}
	if cfg.Image.MaxSize == 0 {
		cfg.Image.MaxSize = 512
	}
	if cfg.Image.JPEGQuality == 0 {
		cfg.Image.JPEGQuality = 85
	}
	if cfg.Image.MaxFileBytes == 0 {
		cfg.Image.MaxFileBytes = 4 << 20
	}

	g := &cfg.General
	if g.PollIntervalSeconds == 0 {
		g.PollIntervalSeconds = 5
	}
	if g.IdleIntervalSeconds == 0 {
		g.IdleIntervalSeconds = 15
	}
	if g.RequestTimeoutMs == 0 {
		g.RequestTimeoutMs = 5000
	}
	if g.RequestsPerSecond == 0 {
		g.RequestsPerSecond = 4
	}
	if g.AlbumVersion == nil {
		g.AlbumVersion = ptr(true)
	}
	if g.WatchConfig == nil {
		g.WatchConfig = ptr(true)
	}
	if g.CacheBackend == "" {
		g.CacheBackend = "json"
	}
	if g.CacheFile == "" {
		g.CacheFile = "cache.json"
	}
	if g.AlbumCacheFile == "" {
		g.AlbumCacheFile = "album_cache.json"
	}
	if g.SQLitePath == "" {
		g.SQLitePath = "navsync.db"
	}
	if g.RedisAddr == "" {
		g.RedisAddr = "localhost:6379"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "navsync.log"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = ui.DefaultTheme
	}
}

func ptr[T any](v T) *T { return &v }

// Validate performs semantic validation. Problems that should not stop
// startup are reported by Warnings instead.
func Validate(cfg Config) error {
	var errs []error

	if cfg.Navidrome.BaseURL == "" {
		errs = append(errs, errors.New("navidrome.base_url is required"))
	} else if u, err := url.Parse(cfg.Navidrome.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("navidrome.base_url %q must be an http(s) URL", cfg.Navidrome.BaseURL))
	}
	if cfg.Navidrome.Username == "" {
		errs = append(errs, errors.New("navidrome.username is required"))
	}

	id := cfg.Integration.DiscordClientID
	switch {
	case id == "":
		errs = append(errs, errors.New("integration.discord_client_id is required"))
	case strings.Trim(id, "0123456789") != "":
		errs = append(errs, fmt.Errorf("integration.discord_client_id should be numeric, got %q", id))
	}

	switch cfg.Integration.ImageHost {
	case HostImgur:
		if cfg.Integration.ImgurClientID == "" {
			errs = append(errs, errors.New("integration.imgur_client_id is required for image_host = \"imgur\""))
		}
	case HostS3:
		s3 := cfg.Integration.S3
		if s3.Endpoint == "" || s3.Bucket == "" {
			errs = append(errs, errors.New("integration.s3.endpoint and integration.s3.bucket are required for image_host = \"s3\""))
		}
		if s3.AccessKey == "" || s3.SecretKey == "" {
			errs = append(errs, errors.New("integration.s3 credentials are required for image_host = \"s3\""))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown integration.image_host %q", cfg.Integration.ImageHost))
	}

	if cfg.Image.MaxSize < 1 {
		errs = append(errs, errors.New("image.max_size must be positive"))
	}
	if cfg.Image.JPEGQuality < 1 || cfg.Image.JPEGQuality > 100 {
		errs = append(errs, errors.New("image.jpeg_quality must be 1-100"))
	}
	if cfg.Image.MaxFileBytes < 1 {
		errs = append(errs, errors.New("image.max_file_bytes must be positive"))
	}

	g := cfg.General
	if g.PollIntervalSeconds < 1 || g.IdleIntervalSeconds < 1 {
		errs = append(errs, errors.New("general poll and idle intervals must be positive"))
	}
	if g.RequestTimeoutMs < 1 {
		errs = append(errs, errors.New("general.request_timeout_ms must be positive"))
	}
	if g.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("general.requests_per_second must not be negative"))
	}
	if !slices.Contains(knownBackends, g.CacheBackend) {
		errs = append(errs, fmt.Errorf("unknown general.cache_backend %q", g.CacheBackend))
	}
	if !slices.Contains(knownLevels, strings.ToLower(cfg.Log.Level)) {
		errs = append(errs, fmt.Errorf("unknown log.level %q", cfg.Log.Level))
	}
	if !ui.ValidTheme(cfg.UI.Theme) {
		errs = append(errs, fmt.Errorf("unknown ui.theme %q", cfg.UI.Theme))
	}
	return errors.Join(errs...)
}

// Warnings lists settings that look wrong but are allowed.
func Warnings(cfg Config) []string {
	var w []string
	if n := len(cfg.Integration.DiscordClientID); n > 0 && (n < 17 || n > 20) {
		w = append(w, fmt.Sprintf("discord client id has unusual length: %d digits", n))
	}
	if cfg.Integration.ImageHost == HostImgur {
		if n := len(cfg.Integration.ImgurClientID); n > 0 && n < 10 {
			w = append(w, fmt.Sprintf("imgur client id seems too short: %d characters", n))
		}
	}
	if cfg.Navidrome.Password == "" {
		w = append(w, "navidrome password is empty")
	}
	return w
}

// Dir is the directory relative paths are resolved against.
func (c Config) Dir() string { return c.dir }

// Path resolves p against the config directory unless it is absolute.
func (c Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

func (c Config) PlayingInterval() time.Duration {
	return time.Duration(c.General.PollIntervalSeconds) * time.Second
}

func (c Config) IdleInterval() time.Duration {
	return time.Duration(c.General.IdleIntervalSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	d := time.Duration(c.General.RequestTimeoutMs) * time.Millisecond
	if d <= 0 {
		d = 5 * time.Second
	}
	return d
}

func (c Config) AlbumVersionEnabled() bool {
	return c.General.AlbumVersion == nil || *c.General.AlbumVersion
}

func (c Config) WatchEnabled() bool {
	return c.General.WatchConfig == nil || *c.General.WatchConfig
}

// DeadlineContext returns a child of parent bounded by the request timeout.
func (c Config) DeadlineContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.RequestTimeout())
}
