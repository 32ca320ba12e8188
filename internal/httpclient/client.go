// Package httpclient builds the shared *http.Client used for every outbound
// call: status-based retry with exponential backoff, plus optional pacing.
package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	maxRetryAfter      = 30 * time.Second
)

type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BackoffBase is the first retry delay; each further retry doubles it.
	BackoffBase time.Duration
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
	Base              http.RoundTripper
	Logger            *slog.Logger
}

// New returns a client whose transport retries idempotent requests that fail
// with 429, 500, 502, 503 or 504, or with a network error.
func New(opts Options) *http.Client {
	return &http.Client{Transport: NewTransport(opts)}
}

func NewTransport(opts Options) http.RoundTripper {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	t := &retryTransport{opts: opts}
	if opts.RequestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return t
}

type retryTransport struct {
	opts    Options
	limiter *rate.Limiter
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	retryable := idempotent(req.Method)

	for attempt := 0; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := t.opts.Base.RoundTrip(req)
		if !retryable || attempt >= t.opts.MaxRetries || !shouldRetry(ctx, resp, err) {
			return resp, err
		}

		wait := t.backoff(attempt, resp)
		if resp != nil {
			t.opts.Logger.Debug("retrying request",
				slog.String("url", redact(req)),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait))
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		} else {
			t.opts.Logger.Debug("retrying request",
				slog.String("url", redact(req)),
				slog.Any("err", err),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *retryTransport) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
				return min(time.Duration(secs)*time.Second, maxRetryAfter)
			}
		}
	}
	return t.opts.BackoffBase << attempt
}

func shouldRetry(ctx context.Context, resp *http.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete, http.MethodTrace:
		return true
	}
	return false
}

// redact drops the query string, which carries credentials for the music server.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
