package configstore

import (
	"fmt"
	"time"

	"github.com/psaab/netcli/pkg/config"
)

// HistoryEntry is one committed running configuration.
type HistoryEntry struct {
	Config    *config.Tree
	Timestamp time.Time
	Comment   string
	User      string
}

// History is a bounded ring of previous running configurations, oldest
// first. Entry 0 as seen by Get is the most recent commit.
type History struct {
	entries []*HistoryEntry
	maxSize int
}

// NewHistory creates a history ring holding at most maxSize entries.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &History{maxSize: maxSize}
}

// Push appends an entry, evicting the oldest when the ring is full.
func (h *History) Push(entry *HistoryEntry) {
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[1:]
	}
}

// Get returns the n-th most recent entry. Get(0) is the configuration
// that was running before the last commit.
func (h *History) Get(n int) (*HistoryEntry, error) {
	if n < 0 || n >= len(h.entries) {
		return nil, fmt.Errorf("no such rollback point: %d", n+1)
	}
	return h.entries[len(h.entries)-1-n], nil
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Resize changes the ring capacity, evicting the oldest entries if the
// ring already holds more than the new limit.
func (h *History) Resize(maxSize int) {
	if maxSize <= 0 {
		maxSize = 1
	}
	h.maxSize = maxSize
	if len(h.entries) > maxSize {
		h.entries = h.entries[len(h.entries)-maxSize:]
	}
}

// List returns the stored entries, most recent first.
func (h *History) List() []*HistoryEntry {
	out := make([]*HistoryEntry, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0; i-- {
		out = append(out, h.entries[i])
	}
	return out
}
