package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/psaab/netcli/pkg/logging"
)

type sseFrame struct {
	ID    uint64
	Event string
	Entry EventEntry
}

// parseSSE splits a recorded stream into frames.
func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, chunk := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		var f sseFrame
		for _, line := range strings.Split(chunk, "\n") {
			switch {
			case strings.HasPrefix(line, "id: "):
				id, err := strconv.ParseUint(line[4:], 10, 64)
				if err != nil {
					t.Fatalf("bad id line %q: %v", line, err)
				}
				f.ID = id
			case strings.HasPrefix(line, "event: "):
				f.Event = line[7:]
			case strings.HasPrefix(line, "data: "):
				if err := json.Unmarshal([]byte(line[6:]), &f.Entry); err != nil {
					t.Fatalf("bad data line %q: %v", line, err)
				}
			}
		}
		frames = append(frames, f)
	}
	return frames
}

// stream runs the SSE handler to completion under ctx and returns the
// parsed frames.
func stream(t *testing.T, ts *testServer, ctx context.Context, target string, header map[string]string) []sseFrame {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil).WithContext(ctx)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.srv.eventStreamHandler(w, req)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	return parseSSE(t, w.Body.String())
}

func seedEvents(ts *testServer) {
	ts.events.Add(logging.EventRecord{Type: logging.EventCommit, User: "alice", Summary: "2 changes committed"})
	ts.events.Add(logging.EventRecord{Type: logging.EventSave, User: "alice", Summary: "configuration saved"})
	ts.events.Add(logging.EventRecord{Type: logging.EventCommit, User: "bob", Summary: "1 change committed"})
}

func TestEventStreamReplay(t *testing.T) {
	ts := newTestServer(t, nil)
	seedEvents(ts)

	// A finished context stops the handler right after the backfill.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := stream(t, ts, ctx, "/api/v1/events/stream?replay=10", nil)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	// Backfill is replayed oldest first so clients see history in order.
	for i, f := range frames {
		if f.ID != uint64(i+1) {
			t.Errorf("frame %d id = %d, want %d", i, f.ID, i+1)
		}
	}
	if frames[0].Entry.Summary != "2 changes committed" {
		t.Errorf("first frame = %+v", frames[0].Entry)
	}
	if frames[1].Event != logging.EventSave {
		t.Errorf("frame 1 event = %q, want save", frames[1].Event)
	}
}

func TestEventStreamResume(t *testing.T) {
	ts := newTestServer(t, nil)
	seedEvents(ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := stream(t, ts, ctx, "/api/v1/events/stream", map[string]string{"Last-Event-ID": "1"})
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].ID != 2 || frames[1].ID != 3 {
		t.Errorf("resume replayed ids %d, %d; want 2, 3", frames[0].ID, frames[1].ID)
	}
}

func TestEventStreamFilter(t *testing.T) {
	ts := newTestServer(t, nil)
	seedEvents(ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := stream(t, ts, ctx, "/api/v1/events/stream?replay=10&type=save", nil)
	if len(frames) != 1 || frames[0].Entry.Type != logging.EventSave {
		t.Fatalf("filtered frames = %+v", frames)
	}

	frames = stream(t, ts, ctx, "/api/v1/events/stream?replay=10&user=bob", nil)
	if len(frames) != 1 || frames[0].Entry.User != "bob" {
		t.Fatalf("user-filtered frames = %+v", frames)
	}
}

func TestEventStreamLive(t *testing.T) {
	ts := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		time.Sleep(30 * time.Millisecond)
		ts.events.Add(logging.EventRecord{Type: logging.EventCommit, Summary: "live event"})
		// Give the handler time to drain the subscription.
		time.Sleep(50 * time.Millisecond)
	}()

	frames := stream(t, ts, ctx, "/api/v1/events/stream", nil)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Event != logging.EventCommit || frames[0].Entry.Summary != "live event" {
		t.Errorf("live frame = %+v", frames[0])
	}
}

func TestEventStreamUnavailable(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) { cfg.Events = nil })

	w := ts.do(t, "GET", "/api/v1/events/stream", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
