package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/psaab/netcli/pkg/audit"
	"github.com/psaab/netcli/pkg/commit"
	"github.com/psaab/netcli/pkg/configstore"
	"github.com/psaab/netcli/pkg/logging"
	"github.com/psaab/netcli/pkg/render"
	"github.com/psaab/netcli/pkg/schema"
)

const apiSchema = `{
  "system": {
    "type": "node",
    "description": "System parameters",
    "renderer": "system",
    "host-name": {
      "type": "node",
      "description": "Host name",
      "<hostname>": {"type": "tagNode", "description": "System host name"}
    },
    "login-banner": {
      "type": "node",
      "description": "Login banner",
      "<text>": {"type": "tagNode", "description": "Banner text"}
    }
  },
  "interfaces": {
    "type": "node",
    "description": "Network interfaces",
    "renderer": "interfaces",
    "<ifname>": {
      "type": "tagNode",
      "description": "Interface name",
      "address": {
        "type": "node",
        "description": "IP address with prefix length",
        "<addr>": {"type": "tagNode", "description": "Address", "multi": true}
      }
    }
  }
}`

type fakeRenderer struct {
	ref  string
	fail error
}

func (f *fakeRenderer) Ref() string { return f.ref }

func (f *fakeRenderer) Render(ctx context.Context, in render.Input) error {
	return f.fail
}

type testServer struct {
	srv    *Server
	store  *configstore.Store
	sys    *fakeRenderer
	events *logging.EventBuffer
}

// newTestServer builds a server over a temp-dir store and fake
// renderers. mutate tweaks the config before construction.
func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(apiSchema), 0644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	schemas, err := schema.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	store := configstore.New(schemas.Config, nil, filepath.Join(dir, "netcli.conf"))
	sys := &fakeRenderer{ref: "system"}
	reg := render.NewRegistry()
	for _, r := range []render.Renderer{sys, &fakeRenderer{ref: "interfaces"}} {
		if err := reg.Register(r); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	events := logging.NewEventBuffer(64)
	engine, err := commit.New(commit.Config{
		Store:     store,
		Renderers: reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Notify: func(kind, msg string) {
			events.Add(logging.EventRecord{Type: kind, Summary: msg})
		},
	})
	if err != nil {
		t.Fatalf("commit.New: %v", err)
	}

	cfg := Config{
		Store:    store,
		Engine:   engine,
		Schemas:  schemas,
		Events:   events,
		Hostname: "lab",
		Version:  "1.0.0",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testServer{srv: NewServer(cfg), store: store, sys: sys, events: events}
}

// do sends one request through the full handler chain.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doAuth(t, method, path, body, nil)
}

func (ts *testServer) doAuth(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.srv.httpServer.Handler.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// decodeEnvelope unpacks the response envelope, decoding data into the
// given pointer when non-nil.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %q: %v", env.Data, err)
		}
	}
	return env
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func TestHealthAndStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, "GET", "/health", nil)
	wantStatus(t, w, http.StatusOK)
	if env := decodeEnvelope(t, w, nil); !env.Success {
		t.Error("health reported failure")
	}

	w = ts.do(t, "GET", "/api/v1/status", nil)
	wantStatus(t, w, http.StatusOK)
	var st StatusResponse
	decodeEnvelope(t, w, &st)
	if st.Hostname != "lab" || st.Version != "1.0.0" {
		t.Errorf("status = %+v, want hostname lab version 1.0.0", st)
	}
	if st.InConfigMode || st.Dirty || st.ConfirmPending {
		t.Errorf("fresh daemon reports activity: %+v", st)
	}
	if st.CommitState != "idle" {
		t.Errorf("commit state = %q, want idle", st.CommitState)
	}
}

func TestConfigEditFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	// Mutations outside a configuration session are refused.
	w := ts.do(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name edge1"})
	wantStatus(t, w, http.StatusConflict)

	w = ts.do(t, "POST", "/api/v1/config/enter", nil)
	wantStatus(t, w, http.StatusOK)
	var mode ConfigModeStatus
	decodeEnvelope(t, w, &mode)
	if !mode.InConfigMode || mode.Dirty {
		t.Fatalf("mode after enter = %+v", mode)
	}

	// The candidate is a single shared lock.
	w = ts.do(t, "POST", "/api/v1/config/enter", nil)
	wantStatus(t, w, http.StatusConflict)

	w = ts.do(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name edge1"})
	wantStatus(t, w, http.StatusOK)
	decodeEnvelope(t, w, &mode)
	if !mode.Dirty {
		t.Error("candidate not dirty after set")
	}

	w = ts.do(t, "GET", "/api/v1/config/compare?format=commands", nil)
	wantStatus(t, w, http.StatusOK)
	var text TextResponse
	decodeEnvelope(t, w, &text)
	if text.Output != "+ set system host-name edge1\n" {
		t.Errorf("compare = %q", text.Output)
	}

	w = ts.do(t, "POST", "/api/v1/config/commit", CommitRequest{Comment: "initial"})
	wantStatus(t, w, http.StatusOK)
	var cr CommitResponse
	decodeEnvelope(t, w, &cr)
	if cr.State != "committed" || cr.Message != "commit complete" || cr.Changes != 1 {
		t.Errorf("commit = %+v", cr)
	}

	w = ts.do(t, "GET", "/api/v1/config/show?path=system", nil)
	wantStatus(t, w, http.StatusOK)
	decodeEnvelope(t, w, &text)
	if !strings.Contains(text.Output, "host-name edge1;") {
		t.Errorf("show = %q", text.Output)
	}

	w = ts.do(t, "GET", "/api/v1/config/history", nil)
	wantStatus(t, w, http.StatusOK)
	var hist []HistoryEntry
	decodeEnvelope(t, w, &hist)
	if len(hist) != 1 || hist[0].Index != 1 || hist[0].Comment != "initial" || hist[0].User != "api" {
		t.Errorf("history = %+v", hist)
	}

	w = ts.do(t, "POST", "/api/v1/config/exit", nil)
	wantStatus(t, w, http.StatusOK)
	decodeEnvelope(t, w, &mode)
	if mode.InConfigMode {
		t.Error("still in config mode after exit")
	}
}

func TestSetErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "POST", "/api/v1/config/enter", nil)

	tests := []struct {
		name string
		body ConfigInputRequest
		want int
	}{
		{"empty input", ConfigInputRequest{}, http.StatusBadRequest},
		{"unknown path", ConfigInputRequest{Input: "bogus path"}, http.StatusBadRequest},
		{"missing value", ConfigInputRequest{Input: "system host-name"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, "POST", "/api/v1/config/set", tt.body)
			wantStatus(t, w, tt.want)
			if env := decodeEnvelope(t, w, nil); env.Success || env.Error == "" {
				t.Errorf("expected error envelope, got %s", w.Body.String())
			}
		})
	}

	w := ts.do(t, "POST", "/api/v1/config/rollback", RollbackRequest{N: 5})
	wantStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, "POST", "/api/v1/config/rollback", RollbackRequest{N: -1})
	wantStatus(t, w, http.StatusBadRequest)
}

func TestShowNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, "GET", "/api/v1/config/show?path=system", nil)
	wantStatus(t, w, http.StatusNotFound)
}

func TestCommitRenderFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "POST", "/api/v1/config/enter", nil)
	ts.do(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name edge1"})

	ts.sys.fail = errors.New("daemon down")
	w := ts.do(t, "POST", "/api/v1/config/commit", nil)
	wantStatus(t, w, http.StatusUnprocessableEntity)
	env := decodeEnvelope(t, w, nil)
	if !strings.Contains(env.Error, "render failed: system") {
		t.Errorf("error = %q", env.Error)
	}

	// Running configuration stays untouched.
	w = ts.do(t, "GET", "/api/v1/config/show?path=system", nil)
	wantStatus(t, w, http.StatusNotFound)
}

func TestCommitNoChanges(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "POST", "/api/v1/config/enter", nil)

	w := ts.do(t, "POST", "/api/v1/config/commit", nil)
	wantStatus(t, w, http.StatusOK)
	var cr CommitResponse
	decodeEnvelope(t, w, &cr)
	if cr.Message != "no changes to commit" || cr.Changes != 0 {
		t.Errorf("commit = %+v", cr)
	}
}

func TestCommitConfirmedAndConfirm(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, "POST", "/api/v1/config/confirm", nil)
	wantStatus(t, w, http.StatusConflict)

	ts.do(t, "POST", "/api/v1/config/enter", nil)
	ts.do(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name edge1"})

	w = ts.do(t, "POST", "/api/v1/config/commit-confirmed", CommitConfirmedRequest{Minutes: 5})
	wantStatus(t, w, http.StatusOK)
	var cr CommitResponse
	decodeEnvelope(t, w, &cr)
	if cr.ConfirmBy == "" {
		t.Fatalf("commit-confirmed did not arm a window: %+v", cr)
	}
	deadline, err := time.Parse(time.RFC3339, cr.ConfirmBy)
	if err != nil || time.Until(deadline) <= 0 {
		t.Errorf("confirm_by = %q, err %v", cr.ConfirmBy, err)
	}

	var st StatusResponse
	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/status", nil), &st)
	if !st.ConfirmPending {
		t.Error("status does not report pending confirmation")
	}

	w = ts.do(t, "POST", "/api/v1/config/confirm", nil)
	wantStatus(t, w, http.StatusOK)

	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/status", nil), &st)
	if st.ConfirmPending {
		t.Error("confirmation still pending after confirm")
	}
}

func TestExitDirtyConflict(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "POST", "/api/v1/config/enter", nil)
	ts.do(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name edge1"})

	w := ts.do(t, "POST", "/api/v1/config/exit", nil)
	wantStatus(t, w, http.StatusConflict)

	w = ts.do(t, "POST", "/api/v1/config/exit", ConfigExitRequest{Discard: true})
	wantStatus(t, w, http.StatusOK)

	var mode ConfigModeStatus
	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/config/status", nil), &mode)
	if mode.InConfigMode {
		t.Error("config session survived exit")
	}
}

func TestDiscard(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "POST", "/api/v1/config/enter", nil)
	ts.do(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name edge1"})

	w := ts.do(t, "POST", "/api/v1/config/discard", nil)
	wantStatus(t, w, http.StatusOK)

	var text TextResponse
	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/config/compare", nil), &text)
	if text.Output != "[no changes]\n" {
		t.Errorf("compare after discard = %q", text.Output)
	}
}

func commitHostname(t *testing.T, ts *testServer, name string) {
	t.Helper()
	ts.do(t, "POST", "/api/v1/config/enter", nil)
	w := ts.do(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name " + name})
	wantStatus(t, w, http.StatusOK)
	w = ts.do(t, "POST", "/api/v1/config/commit", nil)
	wantStatus(t, w, http.StatusOK)
}

func TestExportFormats(t *testing.T) {
	ts := newTestServer(t, nil)
	commitHostname(t, ts, "edge1")

	tests := []struct {
		format     string
		wantStatus int
		contains   string
	}{
		{"", 200, "host-name edge1;"},
		{"text", 200, "host-name edge1;"},
		{"set", 200, "set system host-name edge1"},
		{"json", 200, "{"},
		{"yaml", 400, "unsupported format"},
	}

	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			path := "/api/v1/config/export"
			if tt.format != "" {
				path += "?format=" + tt.format
			}
			w := ts.do(t, "GET", path, nil)
			wantStatus(t, w, tt.wantStatus)

			var text TextResponse
			env := decodeEnvelope(t, w, &text)
			checkStr := text.Output
			if tt.wantStatus != 200 {
				checkStr = env.Error
			}
			if !strings.Contains(checkStr, tt.contains) {
				t.Errorf("response %q does not contain %q", checkStr, tt.contains)
			}
		})
	}
}

func TestRollbackFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	commitHostname(t, ts, "alpha")
	commitHostname(t, ts, "beta")

	w := ts.do(t, "POST", "/api/v1/config/rollback", RollbackRequest{N: 1})
	wantStatus(t, w, http.StatusOK)

	var text TextResponse
	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/config/compare?format=commands", nil), &text)
	if !strings.Contains(text.Output, "- set system host-name beta") ||
		!strings.Contains(text.Output, "+ set system host-name alpha") {
		t.Errorf("rollback compare = %q", text.Output)
	}

	w = ts.do(t, "POST", "/api/v1/config/commit", nil)
	wantStatus(t, w, http.StatusOK)

	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/config/show-set", nil), &text)
	if !strings.Contains(text.Output, "set system host-name alpha") {
		t.Errorf("config after rollback commit = %q", text.Output)
	}
}

func TestSaveWritesConfig(t *testing.T) {
	ts := newTestServer(t, nil)
	commitHostname(t, ts, "edge1")

	w := ts.do(t, "POST", "/api/v1/config/save", nil)
	wantStatus(t, w, http.StatusOK)

	data, err := os.ReadFile(ts.store.Path())
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if !strings.Contains(string(data), "host-name edge1;") {
		t.Errorf("saved config = %q", data)
	}
}

func TestCompleteHandler(t *testing.T) {
	ts := newTestServer(t, nil)

	names := func(t *testing.T, req CompleteRequest) []string {
		t.Helper()
		w := ts.do(t, "POST", "/api/v1/complete", req)
		wantStatus(t, w, http.StatusOK)
		var cands []CandidateInfo
		decodeEnvelope(t, w, &cands)
		var out []string
		for _, c := range cands {
			out = append(out, c.Name)
		}
		return out
	}

	got := names(t, CompleteRequest{Line: "sho"})
	if len(got) != 1 || got[0] != "show" {
		t.Errorf(`complete "sho" = %v`, got)
	}

	got = names(t, CompleteRequest{Line: "set sys", Mode: "config"})
	if len(got) != 1 || got[0] != "system" {
		t.Errorf(`complete "set sys" = %v`, got)
	}

	got = names(t, CompleteRequest{Line: "run sho", Mode: "config"})
	if len(got) != 1 || got[0] != "show" {
		t.Errorf(`complete "run sho" = %v`, got)
	}

	// Tag placeholders come back as display-only hints.
	w := ts.do(t, "POST", "/api/v1/complete", CompleteRequest{Line: "set system host-name ", Mode: "config"})
	var cands []CandidateInfo
	decodeEnvelope(t, w, &cands)
	found := false
	for _, c := range cands {
		if c.Name == "<hostname>" && c.Hint {
			found = true
		}
	}
	if !found {
		t.Errorf("no placeholder hint in %v", cands)
	}
}

func TestEventsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.events.Add(logging.EventRecord{Type: logging.EventCommit, User: "alice", Summary: "2 changes committed"})
	ts.events.Add(logging.EventRecord{Type: logging.EventSave, User: "bob", Summary: "configuration saved"})
	ts.events.Add(logging.EventRecord{Type: logging.EventCommit, User: "bob", Summary: "1 change committed"})

	var events []EventEntry
	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/events", nil), &events)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Summary != "1 change committed" {
		t.Errorf("events not newest-first: %+v", events[0])
	}

	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/events?type=save", nil), &events)
	if len(events) != 1 || events[0].Type != logging.EventSave {
		t.Errorf("type filter = %+v", events)
	}

	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/events?user=alice", nil), &events)
	if len(events) != 1 || events[0].User != "alice" {
		t.Errorf("user filter = %+v", events)
	}

	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/events?limit=2", nil), &events)
	if len(events) != 2 {
		t.Errorf("limit ignored, got %d events", len(events))
	}
}

func TestCommitsArchive(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, "GET", "/api/v1/commits", nil)
	wantStatus(t, w, http.StatusServiceUnavailable)

	arch, err := audit.Open(filepath.Join(t.TempDir(), "commits.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { arch.Close() })

	ts = newTestServer(t, func(cfg *Config) { cfg.Archive = arch })
	rec := commit.Record{User: "alice", Comment: "initial", Result: "commit complete", Duration: 40 * time.Millisecond}
	if err := arch.RecordCommit(context.Background(), rec); err != nil {
		t.Fatalf("RecordCommit: %v", err)
	}

	w = ts.do(t, "GET", "/api/v1/commits", nil)
	wantStatus(t, w, http.StatusOK)
	var rows []audit.Entry
	decodeEnvelope(t, w, &rows)
	if len(rows) != 1 || rows[0].User != "alice" || rows[0].Comment != "initial" {
		t.Errorf("commits = %+v", rows)
	}

	w = ts.do(t, "GET", "/api/v1/commits?user=nobody", nil)
	wantStatus(t, w, http.StatusOK)
	decodeEnvelope(t, w, &rows)
	if len(rows) != 0 {
		t.Errorf("expected no rows for unknown user, got %+v", rows)
	}
}

func TestCommitAttribution(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.Auth = &AuthConfig{Users: map[string]string{"alice": "pw"}}
	})

	w := ts.do(t, "GET", "/api/v1/status", nil)
	wantStatus(t, w, http.StatusUnauthorized)

	hdr := map[string]string{"Authorization": basicAuth("alice", "pw")}
	ts.doAuth(t, "POST", "/api/v1/config/enter", nil, hdr)
	ts.doAuth(t, "POST", "/api/v1/config/set", ConfigInputRequest{Input: "system host-name edge1"}, hdr)
	w = ts.doAuth(t, "POST", "/api/v1/config/commit", nil, hdr)
	wantStatus(t, w, http.StatusOK)

	var hist []HistoryEntry
	decodeEnvelope(t, ts.doAuth(t, "GET", "/api/v1/config/history", nil, hdr), &hist)
	if len(hist) != 1 || hist[0].User != "alice" {
		t.Errorf("history = %+v, want commit attributed to alice", hist)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	commitHostname(t, ts, "edge1")
	ts.do(t, "GET", "/api/v1/nonexistent", nil)

	w := ts.do(t, "GET", "/metrics", nil)
	wantStatus(t, w, http.StatusOK)
	body := w.Body.String()

	for _, metric := range []string{
		"netcli_uptime_seconds",
		"netcli_config_session_active 1",
		"netcli_commit_history_entries 1",
		"netcli_http_requests_total",
		`path="unmatched"`,
		"netcli_commits_total", // commit pipeline metrics ride along
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %q", metric)
		}
	}
}
