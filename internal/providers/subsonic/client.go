// Package subsonic is a read-only client for the parts of the Subsonic API
// that navsync needs: now playing, album details, cover art, and ping.
package subsonic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/navsync/navsync/internal/metrics"
	"github.com/navsync/navsync/internal/provider"
)

const (
	DefaultAPIVersion   = "1.16.1"
	DefaultClientName   = "nav-rpc"
	DefaultTimeout      = 5 * time.Second
	DefaultCoverTimeout = 8 * time.Second

	viewSuffix    = ".view"
	maxCoverBytes = 32 << 20
)

type Config struct {
	BaseURL    string
	Username   string
	Password   string
	ClientName string
	APIVersion string

	// Timeout bounds each JSON call, CoverTimeout each cover download.
	Timeout      time.Duration
	CoverTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

type Client struct {
	cfg      Config
	base     string
	client   *http.Client
	logger   *slog.Logger
	requests atomic.Uint64
}

var _ provider.Source = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	base, err := NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CoverTimeout <= 0 {
		cfg.CoverTimeout = DefaultCoverTimeout
	}
	c := &Client{cfg: cfg, base: base, client: cfg.HTTPClient, logger: cfg.Logger}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c, nil
}

// NormalizeBaseURL trims trailing slashes and makes sure the URL points at the
// /rest root of the API.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: base url %q", provider.ErrInvalidConfig, raw)
	}
	base := strings.TrimRight(raw, "/")
	if !strings.HasSuffix(base, "/rest") {
		base += "/rest"
	}
	return base, nil
}

// Requests reports how many HTTP requests the client has sent.
func (c *Client) Requests() uint64 { return c.requests.Load() }

// NowPlaying returns the server's now-playing list. A successful response
// with nothing playing yields an empty, non-nil payload.
func (c *Client) NowPlaying(ctx context.Context) (*provider.NowPlaying, bool) {
	resp, err := c.getJSON(ctx, "getNowPlaying", nil)
	if err != nil {
		c.logFailure("getNowPlaying", err)
		return nil, false
	}
	if resp.NowPlaying == nil {
		return &provider.NowPlaying{}, true
	}
	return resp.NowPlaying, true
}

func (c *Client) Album(ctx context.Context, id string) (*provider.Album, bool) {
	if id == "" {
		return nil, false
	}
	resp, err := c.getJSON(ctx, "getAlbum", url.Values{"id": {id}})
	if err == nil && resp.Album == nil {
		err = fmt.Errorf("%w: no album in response", provider.ErrMalformed)
	}
	if err != nil {
		c.logFailure("getAlbum", err, slog.String("album_id", id))
		return nil, false
	}
	return resp.Album, true
}

// CoverArt downloads the original image bytes for a cover id.
func (c *Client) CoverArt(ctx context.Context, id string) ([]byte, bool) {
	if id == "" {
		return nil, false
	}
	params := c.params(false)
	params.Set("id", id)

	var err error
	for _, endpoint := range endpoints("getCoverArt") {
		var data []byte
		data, err = c.fetch(ctx, endpoint, params, c.cfg.CoverTimeout, maxCoverBytes)
		if err == nil {
			if len(data) == 0 {
				err = fmt.Errorf("%w: empty image", provider.ErrMalformed)
				continue
			}
			// Errors for binary endpoints come back as a JSON envelope with status 200.
			if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
				if _, err = decode(data); err == nil {
					err = fmt.Errorf("%w: envelope instead of image", provider.ErrMalformed)
				}
				continue
			}
			return data, true
		}
	}
	c.logFailure("getCoverArt", err, slog.String("cover_id", id))
	return nil, false
}

// Ping checks connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.getJSON(ctx, "ping", nil)
	return err
}

type envelope struct {
	Response *response `json:"subsonic-response"`
}

type response struct {
	Status     string               `json:"status"`
	Version    string               `json:"version"`
	Error      *apiError            `json:"error"`
	NowPlaying *provider.NowPlaying `json:"nowPlaying"`
	Album      *provider.Album      `json:"album"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// getJSON calls /rest/<endpoint> and, on any failure, /rest/<endpoint>.view.
// Each path gets the full timeout.
func (c *Client) getJSON(ctx context.Context, endpoint string, extra url.Values) (*response, error) {
	params := c.params(true)
	for k, v := range extra {
		params[k] = v
	}

	var err error
	for _, ep := range endpoints(endpoint) {
		var body []byte
		body, err = c.fetch(ctx, ep, params, c.cfg.Timeout, 0)
		if err != nil {
			continue
		}
		var resp *response
		resp, err = decode(body)
		if err == nil {
			return resp, nil
		}
	}
	return nil, err
}

func decode(body []byte) (*response, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformed, err)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("%w: missing subsonic-response", provider.ErrMalformed)
	}
	if !strings.EqualFold(env.Response.Status, "ok") {
		return nil, apiErr(env.Response.Error)
	}
	return env.Response, nil
}

func apiErr(e *apiError) error {
	if e == nil {
		return provider.ErrFailedResponse
	}
	var base error
	switch e.Code {
	case 40, 41, 44:
		base = provider.ErrUnauthorized
	case 70:
		base = provider.ErrNotFound
	default:
		base = provider.ErrFailedResponse
	}
	return fmt.Errorf("%w: code %d: %s", base, e.Code, e.Message)
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values, timeout time.Duration, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.base + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.requests.Add(1)
	resp, err := c.client.Do(req)
	if err != nil {
		c.cfg.Metrics.SourceRequest(metricName(endpoint), "error")
		return nil, mapHTTPError(err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		c.cfg.Metrics.SourceRequest(metricName(endpoint), "error")
		return nil, err
	}
	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		c.cfg.Metrics.SourceRequest(metricName(endpoint), "error")
		return nil, mapHTTPError(err)
	}
	c.cfg.Metrics.SourceRequest(metricName(endpoint), "ok")
	return body, nil
}

func (c *Client) params(withFormat bool) url.Values {
	v := url.Values{
		"u": {c.cfg.Username},
		"p": {c.cfg.Password},
		"v": {c.cfg.APIVersion},
		"c": {c.cfg.ClientName},
	}
	if withFormat {
		v.Set("f", "json")
	}
	return v
}

func (c *Client) logFailure(endpoint string, err error, attrs ...any) {
	args := append([]any{slog.String("endpoint", endpoint), slog.Any("err", err)}, attrs...)
	c.logger.Warn("music server request failed", args...)
}

func endpoints(name string) []string {
	return []string{name, name + viewSuffix}
}

func metricName(endpoint string) string {
	return strings.TrimSuffix(endpoint, viewSuffix)
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return provider.ErrUnauthorized
	case code == http.StatusNotFound:
		return provider.ErrNotFound
	case code == http.StatusTooManyRequests:
		return provider.ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: http status %d", provider.ErrTemporary, code)
	}
	return fmt.Errorf("http status %d", code)
}

// mapHTTPError strips the request URL, which carries the password.
func mapHTTPError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = fmt.Errorf("%s %s: %w", ue.Op, redactURL(ue.URL), ue.Err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", provider.ErrTemporary, err)
	}
	return err
}

func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
