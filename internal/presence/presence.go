// Package presence turns track snapshots into presence updates and
// suppresses updates that would not change what the display shows.
package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/navsync/navsync/internal/metrics"
	"github.com/navsync/navsync/internal/track"
)

const (
	FallbackImage = "navidrome_logo"
	FallbackAlbum = "Navidrome"

	// startOffset is assumed elapsed time when the server reports no position.
	startOffset = 3 * time.Second
	filler      = "\u200b"
	minTextLen  = 2
)

var ErrNotConnected = errors.New("presence: display not connected")

// Activity is one "listening" update as the display receives it.
type Activity struct {
	Details    string
	State      string
	LargeText  string
	LargeImage string
	// Start and End are unix seconds; nil means no progress bar.
	Start *int64
	End   *int64
}

// Display is the transport to the presence service.
type Display interface {
	Connect(ctx context.Context) error
	SetActivity(ctx context.Context, a Activity) error
	ClearActivity(ctx context.Context) error
	Close() error
}

type Options struct {
	Display Display
	// AssetName is the image key used when no hosted cover is available.
	AssetName string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// Now is a test seam.
	Now func() time.Time
}

type record struct {
	title, artists, album, image string
	timed                        bool
	start, end                   int64
}

// Publisher is Disconnected until Connect succeeds. A failed update drops it
// back to Disconnected.
type Publisher struct {
	opts Options

	mu        sync.Mutex
	connected bool
	last      *record
}

func New(opts Options) *Publisher {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AssetName == "" {
		opts.AssetName = FallbackImage
	}
	return &Publisher{opts: opts}
}

func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	if err := p.opts.Display.Connect(ctx); err != nil {
		return err
	}
	p.connected = true
	p.last = nil
	p.opts.Logger.Info("connected to presence display")
	return nil
}

func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Publish shows s on the display unless the resulting update equals the last
// one sent.
func (p *Publisher) Publish(ctx context.Context, s *track.Snapshot, imageRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		p.opts.Logger.Debug("presence display not connected, skipping update")
		p.opts.Metrics.Presence("skipped")
		return ErrNotConnected
	}

	image := imageRef
	if image == "" {
		image = p.opts.AssetName
	}
	start, end := Timestamps(s, p.opts.Now())

	rec := record{title: s.Title, artists: s.Artists, album: s.Album, image: image}
	if start != nil {
		rec.timed, rec.start, rec.end = true, *start, *end
	}
	if p.last != nil && *p.last == rec {
		p.opts.Metrics.Presence("deduplicated")
		return nil
	}

	album := s.Album
	if album == "" {
		album = FallbackAlbum
	}
	a := Activity{
		Details:    pad(s.Title),
		State:      pad(s.Artists),
		LargeText:  pad(album),
		LargeImage: image,
		Start:      start,
		End:        end,
	}
	if err := p.opts.Display.SetActivity(ctx, a); err != nil {
		p.connected = false
		p.opts.Logger.Warn("presence update failed", slog.Any("err", err))
		p.opts.Metrics.Presence("failed")
		return err
	}
	p.last = &rec
	p.opts.Metrics.Presence("published")
	p.opts.Logger.Info("presence updated", slog.String("track", s.Summary()))
	return nil
}

// Clear forgets the last update and clears the display when connected.
func (p *Publisher) Clear(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = nil
	if !p.connected {
		return
	}
	if err := p.opts.Display.ClearActivity(ctx); err != nil {
		p.opts.Logger.Warn("presence clear failed", slog.Any("err", err))
		return
	}
	p.opts.Metrics.Presence("cleared")
}

// Close clears and disconnects. It is safe to call more than once.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = nil
	if !p.connected {
		return nil
	}
	p.connected = false
	if err := p.opts.Display.ClearActivity(ctx); err != nil {
		p.opts.Logger.Debug("presence clear on close failed", slog.Any("err", err))
	}
	return p.opts.Display.Close()
}

// Timestamps computes the progress bar for s at now. Both are nil when the
// duration is unknown.
func Timestamps(s *track.Snapshot, now time.Time) (start, end *int64) {
	if s == nil || s.Duration == nil {
		return nil, nil
	}
	duration := time.Duration(*s.Duration) * time.Second

	var st time.Time
	switch {
	case s.MinutesAgo != nil:
		st = now.Add(-time.Duration(*s.MinutesAgo) * time.Minute)
	case s.Position != nil:
		st = now.Add(-time.Duration(*s.Position * float64(time.Second)))
	default:
		st = now.Add(-startOffset)
	}
	if st.After(now) {
		st = now.Add(-duration)
	}
	startUnix := st.Unix()
	endUnix := startUnix + int64(*s.Duration)
	return &startUnix, &endUnix
}

func pad(s string) string {
	if n := utf8.RuneCountInString(s); n < minTextLen {
		return s + strings.Repeat(filler, minTextLen-n)
	}
	return s
}
