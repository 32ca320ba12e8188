// Package status is the optional terminal view of what the sync loop last
// published. It only reads a Board the loop writes to.
package status

import (
	"sync"
	"time"

	"github.com/navsync/navsync/internal/track"
)

// Board is the one-way handoff between the loop and the view.
type Board struct {
	mu      sync.RWMutex
	current Current
	now     func() time.Time
}

// Current is a copy of the board's contents.
type Current struct {
	Snapshot *track.Snapshot
	Image    []byte
	Updated  time.Time
	// Version increases on every Set.
	Version uint64
}

func NewBoard() *Board {
	return &Board{now: time.Now}
}

// Set records the latest track. A nil snapshot means nothing is playing.
func (b *Board) Set(s *track.Snapshot, image []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = Current{
		Snapshot: s,
		Image:    image,
		Updated:  b.now(),
		Version:  b.current.Version + 1,
	}
}

func (b *Board) Get() Current {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}
