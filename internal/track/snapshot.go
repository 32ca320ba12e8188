// Package track turns a now-playing payload into the canonical Snapshot that
// the sync loop compares, publishes, and hands to the status view.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is one normalized observation of the playing track. Treat it as
// immutable once built.
type Snapshot struct {
	Title   string
	Artists string
	// Album may carry a " (version)" annotation.
	Album   string
	CoverID string

	Duration   *int     // seconds
	Position   *float64 // seconds elapsed
	MinutesAgo *int
	IsSingle   bool
}

// Key identifies a play event. Snapshots with equal keys are the same event.
type Key struct {
	Title   string
	Artists string
	Album   string
	CoverID string
}

func (s *Snapshot) Key() Key {
	return Key{Title: s.Title, Artists: s.Artists, Album: s.Album, CoverID: s.CoverID}
}

// Summary is the one-line description used in logs and the status view.
func (s *Snapshot) Summary() string {
	if s == nil {
		return ""
	}
	return s.Artists + " - " + s.Title
}

// Length formats the duration as m:ss, or "" when unknown.
func (s *Snapshot) Length() string {
	if s == nil || s.Duration == nil {
		return ""
	}
	return FormatDuration(time.Duration(*s.Duration) * time.Second)
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// MatchesArtist reports whether any of names occurs in the artist string,
// ignoring case.
func (s *Snapshot) MatchesArtist(names []string) bool {
	if s == nil {
		return false
	}
	artists := strings.ToLower(s.Artists)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(artists, n) {
			return true
		}
	}
	return false
}
