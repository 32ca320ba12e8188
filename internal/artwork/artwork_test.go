package artwork

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/navsync/navsync/internal/store"
	"github.com/navsync/navsync/internal/track"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeSource struct {
	data  []byte
	fail  bool
	calls int
}

func (f *fakeSource) CoverArt(context.Context, string) ([]byte, bool) {
	f.calls++
	if f.fail {
		return nil, false
	}
	return f.data, true
}

type fakeUploader struct {
	url   string
	err   error
	calls int
}

func (f *fakeUploader) Name() string { return "fake" }

func (f *fakeUploader) Upload(context.Context, []byte) (string, error) {
	f.calls++
	return f.url, f.err
}

func newURLCache(t *testing.T, path string) *store.Cache {
	t.Helper()
	return store.Open(context.Background(), store.NewJSONFiles(map[string]string{store.NamespaceCoverURLs: path}), store.NamespaceCoverURLs, nil)
}

func newPipeline(t *testing.T, src *fakeSource, up *fakeUploader, urls *store.Cache) *Pipeline {
	t.Helper()
	p, err := New(Options{Source: src, Uploader: up, URLs: urls})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func snapshot() *track.Snapshot {
	return &track.Snapshot{Title: "Anti-Hero", Artists: "Taylor Swift", Album: "Midnights", CoverID: "al-1"}
}

func TestOptimizeDownscales(t *testing.T) {
	out, err := Optimizer{MaxSize: 512, Quality: 85}.Optimize(pngBytes(t, 1000, 800))
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !out.Resized || out.Width != 512 || out.Height != 409 {
		t.Errorf("unexpected size %dx%d resized=%v", out.Width, out.Height, out.Resized)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not jpeg: %v", err)
	}
	if cfg.Width != 512 || cfg.Height != 409 {
		t.Errorf("jpeg is %dx%d", cfg.Width, cfg.Height)
	}
}

func TestOptimizeKeepsSmallImages(t *testing.T) {
	out, err := Optimizer{}.Optimize(pngBytes(t, 64, 128))
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if out.Resized || out.Width != 64 || out.Height != 128 {
		t.Errorf("unexpected size %dx%d resized=%v", out.Width, out.Height, out.Resized)
	}
}

func TestOptimizeRejects(t *testing.T) {
	if _, err := (Optimizer{MaxBytes: 10}).Optimize(pngBytes(t, 64, 64)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, err := (Optimizer{}).Optimize([]byte("not an image")); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := (Optimizer{}).Optimize(nil); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for empty input, got %v", err)
	}
}

func TestFit(t *testing.T) {
	tests := []struct{ w, h, limit, wantW, wantH int }{
		{100, 100, 512, 100, 100},
		{1024, 1024, 512, 512, 512},
		{600, 1200, 512, 256, 512},
		{5000, 2, 512, 512, 1},
	}
	for _, tt := range tests {
		w, h := fit(tt.w, tt.h, tt.limit)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fit(%d, %d, %d) = %d, %d; want %d, %d", tt.w, tt.h, tt.limit, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestGetOrUploadIsIdempotent(t *testing.T) {
	src := &fakeSource{data: pngBytes(t, 600, 600)}
	up := &fakeUploader{url: "https://i.imgur.com/m.jpg"}
	p := newPipeline(t, src, up, newURLCache(t, filepath.Join(t.TempDir(), "cache.json")))

	url1, data1 := p.GetOrUpload(context.Background(), snapshot())
	if url1 != "https://i.imgur.com/m.jpg" || len(data1) == 0 {
		t.Fatalf("unexpected first result %q, %d bytes", url1, len(data1))
	}
	url2, data2 := p.GetOrUpload(context.Background(), snapshot())
	if url2 != url1 || !bytes.Equal(data1, data2) {
		t.Error("second call returned a different result")
	}
	if src.calls != 1 || up.calls != 1 {
		t.Errorf("expected one download and one upload, got %d and %d", src.calls, up.calls)
	}
}

func TestGetOrUploadNoop(t *testing.T) {
	src := &fakeSource{data: pngBytes(t, 8, 8)}
	up := &fakeUploader{url: "u"}
	p := newPipeline(t, src, up, newURLCache(t, filepath.Join(t.TempDir(), "cache.json")))

	for _, s := range []*track.Snapshot{nil, {Album: "A"}, {CoverID: "c"}} {
		if url, data := p.GetOrUpload(context.Background(), s); url != "" || data != nil {
			t.Errorf("expected no-op for %+v", s)
		}
	}
	if src.calls != 0 || up.calls != 0 {
		t.Errorf("expected no network calls, got %d/%d", src.calls, up.calls)
	}
}

func TestGetOrUploadReusesPersistedURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	urls := newURLCache(t, path)
	urls.Set(context.Background(), "Midnights", "https://i.imgur.com/old.jpg")

	src := &fakeSource{data: pngBytes(t, 32, 32)}
	up := &fakeUploader{url: "https://i.imgur.com/new.jpg"}
	p := newPipeline(t, src, up, newURLCache(t, path))

	url, data := p.GetOrUpload(context.Background(), snapshot())
	if url != "https://i.imgur.com/old.jpg" || data == nil {
		t.Errorf("expected cached url with fresh bytes, got %q, %d bytes", url, len(data))
	}
	if up.calls != 0 {
		t.Errorf("expected no upload, got %d", up.calls)
	}

	src.fail = true
	p2 := newPipeline(t, src, up, newURLCache(t, path))
	url, data = p2.GetOrUpload(context.Background(), snapshot())
	if url != "https://i.imgur.com/old.jpg" || data != nil {
		t.Errorf("expected cached url without bytes, got %q, %d bytes", url, len(data))
	}
}

func TestGetOrUploadDownloadFails(t *testing.T) {
	src := &fakeSource{fail: true}
	up := &fakeUploader{url: "u"}
	p := newPipeline(t, src, up, newURLCache(t, filepath.Join(t.TempDir(), "cache.json")))

	if url, data := p.GetOrUpload(context.Background(), snapshot()); url != "" || data != nil {
		t.Errorf("expected nothing, got %q, %d bytes", url, len(data))
	}
	if up.calls != 0 {
		t.Error("upload should not run without an image")
	}
}

func TestGetOrUploadUploadFailsKeepsBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	src := &fakeSource{data: pngBytes(t, 32, 32)}
	up := &fakeUploader{err: errors.New("rate limited")}
	p := newPipeline(t, src, up, newURLCache(t, path))

	url, data := p.GetOrUpload(context.Background(), snapshot())
	if url != "" || data == nil {
		t.Errorf("expected bytes without url, got %q, %d bytes", url, len(data))
	}
	if _, ok := p.Cached("Midnights"); !ok {
		t.Error("expected bytes cached after failed upload")
	}
	if newURLCache(t, path).Len() != 0 {
		t.Error("failed upload must not persist a url")
	}
}

func TestRenderANSI(t *testing.T) {
	out, err := RenderANSI(pngBytes(t, 100, 100), 10, 5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Errorf("expected 5 rows, got %d", len(lines))
	}
	if got := strings.Count(lines[0], upperHalf); got != 10 {
		t.Errorf("expected 10 cells, got %d", got)
	}
	if _, err := RenderANSI([]byte("nope"), 10, 5); err == nil {
		t.Error("expected decode error")
	}
}

func TestPlaceholder(t *testing.T) {
	out := Placeholder(12, 5)
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if n := len([]rune(l)); n != 12 {
			t.Errorf("line %d has %d runes", i, n)
		}
	}
	if !strings.Contains(lines[2], "♪") {
		t.Error("expected note in the middle line")
	}
}
