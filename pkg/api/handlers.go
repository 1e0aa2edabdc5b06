package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psaab/netcli/pkg/commit"
	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/errcode"
	"github.com/psaab/netcli/pkg/logging"
	"github.com/psaab/netcli/pkg/netinfo"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

// httpStatus maps the error taxonomy onto HTTP status codes. Uncoded
// errors fall through to 500.
func httpStatus(err error) int {
	switch errcode.Code(err) {
	case errcode.NoSuchCommand, errcode.IncompleteCommand,
		errcode.Validation, errcode.InvalidPath:
		return http.StatusBadRequest
	case errcode.NotFound:
		return http.StatusNotFound
	case errcode.ConfigLocked:
		return http.StatusConflict
	case errcode.RenderFailure:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a request body into v. An empty body leaves v at
// its zero value, so endpoints with all-optional parameters accept a
// bare POST.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// eventf records an API-side configuration event.
func (s *Server) eventf(typ, user, format string, args ...any) {
	if s.events == nil {
		return
	}
	s.events.Add(logging.EventRecord{
		Type:    typ,
		User:    user,
		Session: "api",
		Summary: fmt.Sprintf(format, args...),
	})
}

// requireConfigMode rejects mutating requests outside a configuration
// session. The store itself would refuse too; checking here keeps the
// 409 status and message consistent across endpoints.
func (s *Server) requireConfigMode(w http.ResponseWriter) bool {
	if !s.store.InConfigMode() {
		writeError(w, http.StatusConflict, "not in configuration mode")
		return false
	}
	return true
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Hostname:      s.hostname,
		Version:       s.version,
		Uptime:        time.Since(s.startTime).Truncate(time.Second).String(),
		ConfigPath:    s.store.Path(),
		InConfigMode:  s.store.InConfigMode(),
		Dirty:         s.store.IsDirty(),
		HistoryLength: len(s.store.History()),
	}
	if k, err := netinfo.KernelVersion(); err == nil {
		resp.Kernel = k
	}
	if s.engine != nil {
		resp.CommitState = s.engine.State().String()
		if deadline, ok := s.engine.Pending(); ok {
			resp.ConfirmPending = true
			resp.ConfirmBy = deadline.Format(time.RFC3339)
		}
	}
	writeOK(w, resp)
}

// pathTokens splits the ?path= query parameter into configuration
// path tokens.
func pathTokens(r *http.Request) []string {
	return strings.Fields(r.URL.Query().Get("path"))
}

func (s *Server) configShowHandler(w http.ResponseWriter, r *http.Request) {
	tokens := pathTokens(r)
	var out string
	var err error
	if r.URL.Query().Get("source") == "candidate" {
		out, err = s.store.ShowCandidate(tokens)
	} else {
		out, err = s.store.ShowRunning(tokens)
	}
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeOK(w, TextResponse{Output: out})
}

func (s *Server) configShowSetHandler(w http.ResponseWriter, r *http.Request) {
	var out string
	if r.URL.Query().Get("source") == "candidate" {
		out = s.store.ShowCandidateSet()
	} else {
		out = s.store.ShowRunningSet()
	}
	writeOK(w, TextResponse{Output: out})
}

func (s *Server) configCompareHandler(w http.ResponseWriter, r *http.Request) {
	var out string
	if r.URL.Query().Get("format") == "commands" {
		out = s.store.CompareCommands()
	} else {
		out = s.store.Compare()
	}
	writeOK(w, TextResponse{Output: out})
}

func (s *Server) configExportHandler(w http.ResponseWriter, r *http.Request) {
	running := s.store.RunningSnapshot()
	switch format := r.URL.Query().Get("format"); format {
	case "", "text":
		writeOK(w, TextResponse{Output: running.Format()})
	case "set":
		writeOK(w, TextResponse{Output: running.FormatSet()})
	case "json":
		data, err := running.ExportJSON()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w, TextResponse{Output: string(data)})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

func (s *Server) configHistoryHandler(w http.ResponseWriter, _ *http.Request) {
	entries := s.store.History()
	result := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		result[i] = HistoryEntry{
			Index:     i + 1,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			User:      e.User,
			Comment:   e.Comment,
		}
	}
	writeOK(w, result)
}

func (s *Server) configStatusHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, s.modeStatus())
}

func (s *Server) modeStatus() ConfigModeStatus {
	return ConfigModeStatus{
		InConfigMode: s.store.InConfigMode(),
		Dirty:        s.store.IsDirty(),
	}
}

func (s *Server) configEnterHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.EnterConfigure(); err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	s.eventf(logging.EventConfigMode, userFrom(r), "entered configuration mode")
	writeOK(w, s.modeStatus())
}

func (s *Server) configExitHandler(w http.ResponseWriter, r *http.Request) {
	var req ConfigExitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.store.InConfigMode() {
		writeOK(w, s.modeStatus())
		return
	}
	if s.store.IsDirty() && !req.Discard {
		writeError(w, http.StatusConflict,
			"uncommitted changes (commit them or exit with discard)")
		return
	}
	s.store.ExitConfigure()
	s.eventf(logging.EventConfigMode, userFrom(r), "exited configuration mode")
	writeOK(w, s.modeStatus())
}

func (s *Server) configSetHandler(w http.ResponseWriter, r *http.Request) {
	s.applyInput(w, r, s.store.SetFromInput, "set")
}

func (s *Server) configDeleteHandler(w http.ResponseWriter, r *http.Request) {
	s.applyInput(w, r, s.store.DeleteFromInput, "delete")
}

func (s *Server) applyInput(w http.ResponseWriter, r *http.Request, apply func(string) error, verb string) {
	if !s.requireConfigMode(w) {
		return
	}
	var req ConfigInputRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, verb+" requires a configuration path")
		return
	}
	if err := apply(req.Input); err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeOK(w, s.modeStatus())
}

func commitResponse(res *commit.Result) CommitResponse {
	resp := CommitResponse{
		State:   res.State.String(),
		Message: res.Message,
		Changes: len(res.Entries),
	}
	if !res.ConfirmBy.IsZero() {
		resp.ConfirmBy = res.ConfirmBy.Format(time.RFC3339)
	}
	if res.PersistErr != nil {
		resp.PersistError = res.PersistErr.Error()
	}
	return resp
}

func (s *Server) requireEngine(w http.ResponseWriter) bool {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "commit engine not available")
		return false
	}
	return true
}

func (s *Server) configCommitHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) || !s.requireConfigMode(w) {
		return
	}
	var req CommitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runCommit(w, r, commit.Options{Comment: req.Comment, User: userFrom(r)})
}

func (s *Server) configCommitConfirmedHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) || !s.requireConfigMode(w) {
		return
	}
	var req CommitConfirmedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Minutes == 0 {
		req.Minutes = 10
	}
	if req.Minutes < 1 {
		writeError(w, http.StatusBadRequest, "confirm window must be at least 1 minute")
		return
	}
	s.runCommit(w, r, commit.Options{
		Comment:   req.Comment,
		User:      userFrom(r),
		Confirmed: time.Duration(req.Minutes) * time.Minute,
	})
}

func (s *Server) runCommit(w http.ResponseWriter, r *http.Request, opts commit.Options) {
	res, err := s.engine.Commit(r.Context(), opts)
	if err != nil {
		msg := err.Error()
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		writeError(w, httpStatus(err), msg)
		return
	}
	writeOK(w, commitResponse(res))
}

func (s *Server) configCommitCheckHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) || !s.requireConfigMode(w) {
		return
	}
	res, err := s.engine.Check(r.Context())
	if err != nil {
		writeError(w, httpStatus(err), res.Message)
		return
	}
	writeOK(w, commitResponse(res))
}

func (s *Server) configConfirmHandler(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	if _, ok := s.engine.Pending(); !ok {
		writeError(w, http.StatusConflict, "no confirmed commit pending")
		return
	}
	if err := s.engine.Confirm(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeOK(w, TextResponse{Output: "commit confirmed"})
}

func (s *Server) configDiscardHandler(w http.ResponseWriter, _ *http.Request) {
	if !s.requireConfigMode(w) {
		return
	}
	if err := s.store.Discard(); err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeOK(w, TextResponse{Output: "changes discarded"})
}

func (s *Server) configRollbackHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireConfigMode(w) {
		return
	}
	var req RollbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.N < 0 {
		writeError(w, http.StatusBadRequest, "rollback index must not be negative")
		return
	}
	if err := s.store.Rollback(req.N); err != nil {
		// Config mode is held, so the only ring failure is a bad
		// index; the archive may still hold older points.
		if req.N == 0 || s.archive == nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.rollbackFromArchive(r.Context(), req.N); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.eventf(logging.EventRollback, userFrom(r), "rollback %d loaded into candidate", req.N)
	writeOK(w, TextResponse{Output: fmt.Sprintf("load complete from rollback %d", req.N)})
}

// rollbackFromArchive serves rollback points the in-memory ring no
// longer holds, typically after a daemon restart.
func (s *Server) rollbackFromArchive(ctx context.Context, n int) error {
	text, err := s.archive.SnapshotBefore(ctx, n)
	if err != nil {
		return err
	}
	tree, err := config.ParseText(text)
	if err != nil {
		return fmt.Errorf("parse archived rollback %d: %w", n, err)
	}
	return s.store.LoadCandidate(tree)
}

func (s *Server) configSaveHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Save(); err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	s.eventf(logging.EventSave, userFrom(r), "configuration saved to %s", s.store.Path())
	writeOK(w, TextResponse{Output: "configuration saved to " + s.store.Path()})
}

func (s *Server) completeHandler(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	matcher := s.opMatch.Load()
	line := req.Line
	if req.Mode == "config" {
		matcher = s.cfgMatch.Load()
		// "run" escapes to the operational tree, same as the console.
		if rest, ok := strings.CutPrefix(line, "run "); ok {
			matcher = s.opMatch.Load()
			line = rest
		}
	}
	if matcher == nil {
		writeError(w, http.StatusServiceUnavailable, "completion not available")
		return
	}

	cands := matcher.CompleteLine(line)
	result := make([]CandidateInfo, len(cands))
	for i, c := range cands {
		result[i] = CandidateInfo{Name: c.Name, Desc: c.Desc, Hint: c.Hint}
	}
	writeOK(w, result)
}

func eventEntry(rec logging.EventRecord) EventEntry {
	return EventEntry{
		Seq:     rec.Seq,
		Time:    rec.Time.Format(time.RFC3339),
		Type:    rec.Type,
		User:    rec.User,
		Session: rec.Session,
		Summary: rec.Summary,
		Detail:  rec.Detail,
	}
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeOK(w, []EventEntry{})
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit > 1000 {
		limit = 1000
	}
	filter := logging.EventFilter{
		Type: r.URL.Query().Get("type"),
		User: r.URL.Query().Get("user"),
	}

	records := s.events.LatestFiltered(limit, filter)
	result := make([]EventEntry, len(records))
	for i, rec := range records {
		result[i] = eventEntry(rec)
	}
	writeOK(w, result)
}

func (s *Server) commitsHandler(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "commit archive not available")
		return
	}

	limit := queryInt(r, "limit", 0)
	if user := r.URL.Query().Get("user"); user != "" {
		rows, err := s.archive.ByUser(r.Context(), user, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w, rows)
		return
	}
	rows, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, rows)
}
