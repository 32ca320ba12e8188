package track

import (
	"context"
	"strings"
	"unicode"

	"github.com/navsync/navsync/internal/provider"
)

// msThreshold separates positions reported in seconds from those in
// milliseconds.
const msThreshold = 100000

const unknownArtist = "Unknown"

// AlbumResolver supplies album facts that the now-playing entry lacks.
type AlbumResolver interface {
	VersionComment(ctx context.Context, albumID string) string
	ReleaseInfo(ctx context.Context, albumID string) (provider.ReleaseInfo, bool)
}

type Options struct {
	// TrackComment keeps the raw title, subtitle included.
	TrackComment bool
	// AlbumVersion appends the album's version string to the album name.
	AlbumVersion bool
	Albums       AlbumResolver
}

// Normalize builds a Snapshot from the first now-playing entry, or returns
// nil when there is none.
func Normalize(ctx context.Context, np *provider.NowPlaying, opts Options) *Snapshot {
	e, ok := np.First()
	if !ok {
		return nil
	}

	s := &Snapshot{
		Title:   title(e, opts.TrackComment),
		Artists: artists(e),
		Album:   e.Album,
		CoverID: firstNonEmpty(e.CoverArt, e.CoverID),
	}

	if d, ok := e.Duration.Int(); ok && d > 0 {
		s.Duration = &d
	}
	s.Position = position(e)
	if m, ok := e.MinutesAgo.Int(); ok && m >= 0 {
		s.MinutesAgo = &m
	}

	if opts.Albums != nil && e.AlbumID != "" {
		if opts.AlbumVersion && e.Album != "" {
			if v := opts.Albums.VersionComment(ctx, e.AlbumID); v != "" {
				s.Album = e.Album + " (" + v + ")"
			}
		}
		if strings.EqualFold(strings.TrimSpace(s.Title), strings.TrimSpace(e.Album)) {
			if info, ok := opts.Albums.ReleaseInfo(ctx, e.AlbumID); ok {
				s.IsSingle = info.IsSingle()
			}
		}
	}
	return s
}

func title(e provider.Entry, keepComment bool) string {
	raw := firstNonEmpty(e.Title, e.Name)
	if keepComment || e.SortName == "" {
		return raw
	}
	return StripSubtitle(raw, e.SortName)
}

// StripSubtitle cuts raw down to the length of sortName when sortName is a
// case-insensitive prefix of it. Otherwise it returns sortName title-cased.
func StripSubtitle(raw, sortName string) string {
	rr, sr := []rune(raw), []rune(sortName)
	if len(rr) >= len(sr) && strings.EqualFold(string(rr[:len(sr)]), sortName) {
		return string(rr[:len(sr)])
	}
	return TitleCase(sortName)
}

// TitleCase upper-cases the first letter of every word and lower-cases the
// rest. An apostrophe between letters does not start a new word.
func TitleCase(s string) string {
	rs := []rune(s)
	inWord := false
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if inWord {
				rs[i] = unicode.ToLower(r)
			} else {
				rs[i] = unicode.ToUpper(r)
			}
			inWord = true
		case (r == '\'' || r == '’') && inWord && i+1 < len(rs) && unicode.IsLetter(rs[i+1]):
		default:
			inWord = false
		}
	}
	return string(rs)
}

func artists(e provider.Entry) string {
	for _, refs := range [][]provider.ArtistRef{e.Artists, e.AlbumArtists} {
		if names := refNames(refs); len(names) > 0 {
			return strings.Join(names, ", ")
		}
	}
	if names := splitArtists(e.Artist); len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return unknownArtist
}

func refNames(refs []provider.ArtistRef) []string {
	var names []string
	for _, r := range refs {
		if n := strings.TrimSpace(r.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func splitArtists(s string) []string {
	var names []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

func position(e provider.Entry) *float64 {
	raw := e.Position
	if !raw.Present() {
		raw = e.Elapsed
	}
	v, ok := raw.Int()
	if !ok {
		return nil
	}
	pos := float64(v)
	if v > msThreshold {
		pos = float64(v) / 1000
	}
	if pos < 0 {
		return nil
	}
	return &pos
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
