// Package syncloop drives the poll → normalize → artwork → presence cycle.
package syncloop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/navsync/navsync/internal/metrics"
	"github.com/navsync/navsync/internal/provider"
	"github.com/navsync/navsync/internal/track"
)

const closeTimeout = 5 * time.Second

// Source reports what the account is playing.
type Source interface {
	NowPlaying(ctx context.Context) (*provider.NowPlaying, bool)
}

// Covers resolves hosted artwork for a snapshot.
type Covers interface {
	GetOrUpload(ctx context.Context, s *track.Snapshot) (string, []byte)
}

// Presence is the publisher side of the display.
type Presence interface {
	Connect(ctx context.Context) error
	Connected() bool
	Publish(ctx context.Context, s *track.Snapshot, imageRef string) error
	Clear(ctx context.Context)
	Close(ctx context.Context) error
}

// Observer receives the latest track and artwork after each change. A nil
// snapshot means nothing is playing.
type Observer interface {
	Set(s *track.Snapshot, image []byte)
}

type Options struct {
	Source    Source
	Normalize track.Options
	Covers    Covers
	Presence  Presence
	Observer  Observer

	PlayingInterval time.Duration
	IdleInterval    time.Duration
	IgnoredArtists  []string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Sleep is a test seam. It returns ctx.Err() when ctx ends first.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Loop is single goroutine: ticks never overlap.
type Loop struct {
	opts Options

	lastKey  *track.Key
	failures int
}

func New(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PlayingInterval <= 0 {
		opts.PlayingInterval = 5 * time.Second
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = opts.PlayingInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Loop{opts: opts}
}

// Run connects the display and polls until ctx ends. A failed initial
// connect or a crashed tick is returned; cancellation is a clean stop that
// clears and closes the display.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.opts.Presence.Connect(ctx); err != nil {
		return fmt.Errorf("connect presence display: %w", err)
	}
	defer l.shutdown(ctx)

	l.opts.Logger.Info("sync loop started",
		slog.Duration("playing_interval", l.opts.PlayingInterval),
		slog.Duration("idle_interval", l.opts.IdleInterval))

	for {
		wait, err := l.safeTick(ctx)
		if err != nil {
			l.opts.Logger.Error("sync loop crashed", slog.Any("err", err))
			return err
		}
		if err := l.opts.Sleep(ctx, wait); err != nil {
			l.opts.Logger.Info("sync loop stopping")
			return nil
		}
	}
}

func (l *Loop) shutdown(ctx context.Context) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := l.opts.Presence.Close(cctx); err != nil {
		l.opts.Logger.Warn("closing presence display", slog.Any("err", err))
	}
	l.observe(nil, nil)
}

func (l *Loop) safeTick(ctx context.Context) (wait time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.opts.Logger.Debug("tick panic", slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("sync tick panicked: %v", r)
		}
	}()
	return l.Tick(ctx), nil
}

// Tick runs one poll cycle and returns how long to wait before the next.
func (l *Loop) Tick(ctx context.Context) time.Duration {
	np, ok := l.opts.Source.NowPlaying(ctx)
	if !ok {
		l.failures++
		l.opts.Metrics.PollFailed()
		l.stopped(ctx, "now playing fetch failed")
		wait := Backoff(l.failures, l.opts.PlayingInterval, l.opts.IdleInterval)
		l.opts.Logger.Warn("now playing unavailable, backing off",
			slog.Int("failures", l.failures), slog.Duration("wait", wait))
		return wait
	}
	l.failures = 0

	snap := track.Normalize(ctx, np, l.opts.Normalize)
	if snap == nil {
		l.stopped(ctx, "nothing playing")
		return l.opts.IdleInterval
	}
	if snap.MatchesArtist(l.opts.IgnoredArtists) {
		l.stopped(ctx, "ignored artist")
		return l.opts.IdleInterval
	}

	key := snap.Key()
	if l.lastKey != nil && *l.lastKey == key {
		return l.opts.PlayingInterval
	}
	l.opts.Logger.Info("now playing", slog.String("track", snap.Summary()), slog.String("album", snap.Album))

	if !l.opts.Presence.Connected() {
		if err := l.opts.Presence.Connect(ctx); err != nil {
			l.opts.Logger.Warn("presence display reconnect failed", slog.Any("err", err))
		}
	}

	var url string
	var image []byte
	if l.opts.Covers != nil {
		url, image = l.opts.Covers.GetOrUpload(ctx, snap)
	}
	l.observe(snap, image)

	if err := l.opts.Presence.Publish(ctx, snap, url); err != nil {
		// Forget the previous track too, or its return would match and skip the retry.
		l.lastKey = nil
		l.opts.Logger.Debug("publish failed, will retry on next tick", slog.Any("err", err))
		return l.opts.PlayingInterval
	}
	l.lastKey = &key
	return l.opts.PlayingInterval
}

// stopped clears the display once per transition away from a track.
func (l *Loop) stopped(ctx context.Context, reason string) {
	if l.lastKey == nil {
		return
	}
	l.opts.Logger.Info("clearing presence", slog.String("reason", reason))
	l.opts.Presence.Clear(ctx)
	l.lastKey = nil
	l.observe(nil, nil)
}

func (l *Loop) observe(s *track.Snapshot, image []byte) {
	if l.opts.Observer != nil {
		l.opts.Observer.Set(s, image)
	}
}

// Backoff is the wait after the given number of consecutive failed polls:
// idle doubled per failure, capped at three times the longer interval.
func Backoff(failures int, playing, idle time.Duration) time.Duration {
	if failures < 1 {
		return idle
	}
	limit := 3 * max(playing, idle)
	wait := idle
	for i := 1; i < failures; i++ {
		wait *= 2
		if wait >= limit {
			return limit
		}
	}
	return min(wait, limit)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
