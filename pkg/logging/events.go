// Package logging provides the daemon's log plumbing: a ring buffer of
// configuration events feeding the API stream, a syslog client, a
// rotating local log file, and an slog handler that tees records to
// both.
package logging

import (
	"strings"
	"sync"
	"time"
)

// Event types recorded in the buffer.
const (
	EventCommit       = "commit"
	EventRollback     = "rollback"
	EventSave         = "save"
	EventSessionOpen  = "session-open"
	EventSessionClose = "session-close"
	EventConfigMode   = "config-mode"
	EventSchemaReload = "schema-reload"
)

// EventRecord is a configuration event stored in the event buffer.
type EventRecord struct {
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	User    string    `json:"user,omitempty"`
	Session string    `json:"session,omitempty"`
	Summary string    `json:"summary"`
	Detail  string    `json:"detail,omitempty"`
}

// EventBuffer is a thread-safe circular buffer of recent events.
type EventBuffer struct {
	mu    sync.RWMutex
	buf   []EventRecord
	size  int
	head  int // next write position
	count int
	seq   uint64

	subMu sync.RWMutex
	subs  map[*Subscription]struct{}
}

// Subscription receives new events from an EventBuffer.
type Subscription struct {
	C  chan EventRecord
	eb *EventBuffer
}

// Close unsubscribes from the buffer.
func (s *Subscription) Close() {
	s.eb.unsubscribe(s)
}

// NewEventBuffer creates an event buffer with the given capacity.
func NewEventBuffer(size int) *EventBuffer {
	if size < 1 {
		size = 256
	}
	return &EventBuffer{
		buf:  make([]EventRecord, size),
		size: size,
		subs: make(map[*Subscription]struct{}),
	}
}

// Add appends an event, overwriting the oldest when full. The sequence
// number is assigned here; a zero Time is stamped with the current
// time. Subscribers are notified without blocking.
func (eb *EventBuffer) Add(rec EventRecord) {
	eb.mu.Lock()
	eb.seq++
	rec.Seq = eb.seq
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	eb.buf[eb.head] = rec
	eb.head = (eb.head + 1) % eb.size
	if eb.count < eb.size {
		eb.count++
	}
	eb.mu.Unlock()

	eb.subMu.RLock()
	for sub := range eb.subs {
		select {
		case sub.C <- rec:
		default: // drop if subscriber is slow
		}
	}
	eb.subMu.RUnlock()
}

// Subscribe returns a Subscription that receives new events. Call
// Close on the subscription when done.
func (eb *EventBuffer) Subscribe(bufSize int) *Subscription {
	if bufSize < 1 {
		bufSize = 64
	}
	sub := &Subscription{
		C:  make(chan EventRecord, bufSize),
		eb: eb,
	}
	eb.subMu.Lock()
	eb.subs[sub] = struct{}{}
	eb.subMu.Unlock()
	return sub
}

func (eb *EventBuffer) unsubscribe(sub *Subscription) {
	eb.subMu.Lock()
	delete(eb.subs, sub)
	eb.subMu.Unlock()
}

// EventFilter selects events by type and user. Empty fields match
// everything; matches are case-insensitive substring tests.
type EventFilter struct {
	Type string
	User string
}

// IsEmpty reports whether no criteria are set.
func (f EventFilter) IsEmpty() bool {
	return f.Type == "" && f.User == ""
}

// Matches reports whether a record passes the filter.
func (f EventFilter) Matches(rec *EventRecord) bool {
	if f.Type != "" && !strings.Contains(strings.ToLower(rec.Type), strings.ToLower(f.Type)) {
		return false
	}
	if f.User != "" && !strings.Contains(strings.ToLower(rec.User), strings.ToLower(f.User)) {
		return false
	}
	return true
}

// Latest returns the most recent n events, newest first.
func (eb *EventBuffer) Latest(n int) []EventRecord {
	return eb.LatestFiltered(n, EventFilter{})
}

// LatestFiltered returns the most recent n events matching the filter,
// newest first.
func (eb *EventBuffer) LatestFiltered(n int, f EventFilter) []EventRecord {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if n <= 0 {
		return nil
	}

	var result []EventRecord
	for i := 0; i < eb.count && len(result) < n; i++ {
		idx := (eb.head - 1 - i + eb.size) % eb.size
		if f.Matches(&eb.buf[idx]) {
			result = append(result, eb.buf[idx])
		}
	}
	return result
}
