package syncloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/navsync/navsync/internal/provider"
	"github.com/navsync/navsync/internal/track"
)

type fakeSource struct {
	results []*provider.NowPlaying // nil entry means a failed poll
	calls   int
}

func (f *fakeSource) NowPlaying(context.Context) (*provider.NowPlaying, bool) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	np := f.results[i]
	return np, np != nil
}

type fakeCovers struct{ calls int }

func (f *fakeCovers) GetOrUpload(_ context.Context, s *track.Snapshot) (string, []byte) {
	f.calls++
	return "https://i.imgur.com/" + s.Album + ".jpg", []byte("jpeg")
}

type fakePresence struct {
	connectErr error
	publishErr error
	connected  bool
	connects   int
	published  []*track.Snapshot
	images     []string
	clears     int
	closes     int
}

func (f *fakePresence) Connect(context.Context) error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakePresence) Connected() bool { return f.connected }

func (f *fakePresence) Publish(_ context.Context, s *track.Snapshot, image string) error {
	if f.publishErr != nil {
		f.connected = false
		return f.publishErr
	}
	f.published = append(f.published, s)
	f.images = append(f.images, image)
	return nil
}

func (f *fakePresence) Clear(context.Context) { f.clears++ }

func (f *fakePresence) Close(context.Context) error {
	f.closes++
	f.connected = false
	return nil
}

type fakeObserver struct{ last *track.Snapshot }

func (f *fakeObserver) Set(s *track.Snapshot, _ []byte) { f.last = s }

func playing(title, artist string) *provider.NowPlaying {
	return &provider.NowPlaying{Entries: provider.EntryList{{
		ID: "t-" + title, Title: title, Artist: artist, Album: title + " LP", CoverArt: "al-" + title,
	}}}
}

func idle() *provider.NowPlaying { return &provider.NowPlaying{} }

func newLoop(src *fakeSource, pres *fakePresence, covers *fakeCovers) *Loop {
	return New(Options{
		Source:          src,
		Covers:          covers,
		Presence:        pres,
		PlayingInterval: 5 * time.Second,
		IdleInterval:    15 * time.Second,
	})
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures      int
		playing, idle time.Duration
		want          time.Duration
	}{
		{0, 5 * time.Second, 15 * time.Second, 15 * time.Second},
		{1, 5 * time.Second, 15 * time.Second, 15 * time.Second},
		{2, 5 * time.Second, 15 * time.Second, 30 * time.Second},
		{3, 5 * time.Second, 15 * time.Second, 45 * time.Second},
		{10, 5 * time.Second, 15 * time.Second, 45 * time.Second},
		{3, 5 * time.Second, 5 * time.Second, 15 * time.Second},
		{2, 20 * time.Second, 5 * time.Second, 10 * time.Second},
		{4, 20 * time.Second, 5 * time.Second, 40 * time.Second},
		{5, 20 * time.Second, 5 * time.Second, 60 * time.Second},
		{200, 20 * time.Second, 5 * time.Second, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.failures, tt.playing, tt.idle); got != tt.want {
			t.Errorf("Backoff(%d, %v, %v) = %v; want %v", tt.failures, tt.playing, tt.idle, got, tt.want)
		}
	}
}

func TestTickDoesNotRepublishSameKey(t *testing.T) {
	src := &fakeSource{results: []*provider.NowPlaying{playing("Song", "Band")}}
	pres := &fakePresence{connected: true}
	covers := &fakeCovers{}
	l := newLoop(src, pres, covers)

	for i := 0; i < 3; i++ {
		if wait := l.Tick(context.Background()); wait != 5*time.Second {
			t.Errorf("tick %d: expected playing interval, got %v", i, wait)
		}
	}
	if len(pres.published) != 1 || covers.calls != 1 {
		t.Errorf("expected one publish and one cover lookup, got %d and %d", len(pres.published), covers.calls)
	}
	if pres.images[0] != "https://i.imgur.com/Song LP.jpg" {
		t.Errorf("unexpected image %q", pres.images[0])
	}
}

func TestTickNewTrackPublishes(t *testing.T) {
	src := &fakeSource{results: []*provider.NowPlaying{playing("One", "Band"), playing("Two", "Band")}}
	pres := &fakePresence{connected: true}
	l := newLoop(src, pres, &fakeCovers{})

	l.Tick(context.Background())
	l.Tick(context.Background())
	if len(pres.published) != 2 || pres.published[1].Title != "Two" {
		t.Fatalf("expected the second track published, got %d updates", len(pres.published))
	}
}

func TestTickClearsWhenPlaybackStops(t *testing.T) {
	src := &fakeSource{results: []*provider.NowPlaying{playing("Song", "Band"), idle(), idle(), playing("Song", "Band")}}
	pres := &fakePresence{connected: true}
	obs := &fakeObserver{}
	l := newLoop(src, pres, &fakeCovers{})
	l.opts.Observer = obs

	l.Tick(context.Background())
	if obs.last == nil {
		t.Fatal("observer should see the playing track")
	}
	if wait := l.Tick(context.Background()); wait != 15*time.Second {
		t.Errorf("expected idle interval, got %v", wait)
	}
	l.Tick(context.Background())
	if pres.clears != 1 {
		t.Errorf("expected exactly one clear, got %d", pres.clears)
	}
	if obs.last != nil {
		t.Error("observer should be told nothing is playing")
	}

	l.Tick(context.Background())
	if len(pres.published) != 2 {
		t.Errorf("the same track after a stop is a new play event, got %d updates", len(pres.published))
	}
}

func TestTickBacksOffAndResets(t *testing.T) {
	src := &fakeSource{results: []*provider.NowPlaying{playing("Song", "Band"), nil, nil, nil, idle()}}
	pres := &fakePresence{connected: true}
	l := newLoop(src, pres, &fakeCovers{})

	l.Tick(context.Background())
	waits := []time.Duration{
		l.Tick(context.Background()),
		l.Tick(context.Background()),
		l.Tick(context.Background()),
		l.Tick(context.Background()),
	}
	want := []time.Duration{15 * time.Second, 30 * time.Second, 45 * time.Second, 15 * time.Second}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d = %v; want %v", i, waits[i], want[i])
		}
	}
	if pres.clears != 1 {
		t.Errorf("a failed poll should clear the display once, got %d", pres.clears)
	}
}

func TestTickIgnoredArtist(t *testing.T) {
	src := &fakeSource{results: []*provider.NowPlaying{playing("Song", "White Noise Machine")}}
	pres := &fakePresence{connected: true}
	l := newLoop(src, pres, &fakeCovers{})
	l.opts.IgnoredArtists = []string{"white noise"}

	if wait := l.Tick(context.Background()); wait != 15*time.Second {
		t.Errorf("expected idle interval, got %v", wait)
	}
	if len(pres.published) != 0 {
		t.Error("ignored artist must not be published")
	}
}

func TestTickRetriesFailedPublish(t *testing.T) {
	src := &fakeSource{results: []*provider.NowPlaying{playing("Song", "Band")}}
	pres := &fakePresence{connected: true, publishErr: errors.New("pipe closed")}
	l := newLoop(src, pres, &fakeCovers{})

	l.Tick(context.Background())
	if pres.connected {
		t.Fatal("expected the presence to drop its connection")
	}

	pres.publishErr = nil
	l.Tick(context.Background())
	if pres.connects != 1 {
		t.Errorf("expected a reconnect, got %d connects", pres.connects)
	}
	if len(pres.published) != 1 {
		t.Errorf("expected publish to succeed after reconnect, got %d", len(pres.published))
	}
}

func TestTickRetriesPreviousTrackAfterFailedPublish(t *testing.T) {
	src := &fakeSource{results: []*provider.NowPlaying{
		playing("A", "Band"), playing("B", "Band"), playing("A", "Band"), playing("A", "Band"),
	}}
	pres := &fakePresence{connected: true}
	l := newLoop(src, pres, &fakeCovers{})

	l.Tick(context.Background())
	pres.publishErr = errors.New("pipe closed")
	l.Tick(context.Background())
	pres.publishErr = nil
	l.Tick(context.Background())
	l.Tick(context.Background())

	if !pres.connected || pres.connects != 1 {
		t.Errorf("expected one reconnect, connected=%v connects=%d", pres.connected, pres.connects)
	}
	if len(pres.published) != 2 || pres.published[1].Title != "A" {
		t.Fatalf("expected A republished once after the failure, got %d updates", len(pres.published))
	}
}

func TestRunConnectFailureIsFatal(t *testing.T) {
	pres := &fakePresence{connectErr: errors.New("discord not running")}
	l := newLoop(&fakeSource{results: []*provider.NowPlaying{idle()}}, pres, &fakeCovers{})
	if err := l.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunClearsAndClosesOnStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{results: []*provider.NowPlaying{playing("Song", "Band")}}
	pres := &fakePresence{}
	l := newLoop(src, pres, &fakeCovers{})

	ticks := 0
	l.opts.Sleep = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks == 2 {
			cancel()
		}
		return ctx.Err()
	}
	if err := l.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pres.published) != 1 {
		t.Errorf("expected one publish, got %d", len(pres.published))
	}
	if pres.closes != 1 || pres.connected {
		t.Errorf("expected the display closed on stop, closes=%d", pres.closes)
	}
}

type panicSource struct{}

func (panicSource) NowPlaying(context.Context) (*provider.NowPlaying, bool) {
	panic("boom")
}

func TestRunReturnsErrorOnPanic(t *testing.T) {
	pres := &fakePresence{}
	l := New(Options{Source: panicSource{}, Presence: pres})
	err := l.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from crashed tick")
	}
	if pres.closes != 1 {
		t.Error("expected the display closed after a crash")
	}
}
