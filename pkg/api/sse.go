package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/psaab/netcli/pkg/logging"
)

// setSSEHeaders configures the response for Server-Sent Events.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event and flushes it out.
func writeSSEEvent(w http.ResponseWriter, id uint64, event, data string) {
	fmt.Fprintf(w, "id: %d\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendEvent(w http.ResponseWriter, rec logging.EventRecord) {
	data, err := json.Marshal(eventEntry(rec))
	if err != nil {
		return
	}
	writeSSEEvent(w, rec.Seq, rec.Type, string(data))
}

// resumeBacklog bounds the records replayed for a reconnecting client.
// The buffer is smaller in practice, so this reads everything it holds.
const resumeBacklog = 8192

// eventStreamHandler streams configuration events as SSE. The event id
// is the buffer sequence number, so a client reconnecting with
// Last-Event-ID picks up what it missed while the buffer still holds
// it. ?type= and ?user= filter; ?replay=N backfills the latest N
// events for a fresh client.
func (s *Server) eventStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	filter := logging.EventFilter{Type: q.Get("type"), User: q.Get("user")}

	backlog := queryInt(r, "replay", 0)
	var after uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			after = n
			if backlog == 0 {
				backlog = resumeBacklog
			}
		}
	}

	// Subscribe before reading the backlog so nothing falls into the
	// gap; duplicates are suppressed by sequence number instead.
	sub := s.events.Subscribe(128)
	defer sub.Close()

	setSSEHeaders(w)

	var lastSent uint64
	if backlog > 0 {
		recent := s.events.LatestFiltered(backlog, filter)
		for i := len(recent) - 1; i >= 0; i-- {
			rec := recent[i]
			if rec.Seq <= after {
				continue
			}
			sendEvent(w, rec)
			lastSent = rec.Seq
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-sub.C:
			if rec.Seq <= lastSent || !filter.Matches(&rec) {
				continue
			}
			sendEvent(w, rec)
			lastSent = rec.Seq
		}
	}
}
