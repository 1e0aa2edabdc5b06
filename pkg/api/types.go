// Package api serves the daemon's HTTP admin surface: configuration
// inspection and editing, the commit pipeline, completion for remote
// clients, the configuration event stream, and Prometheus metrics.
package api

// Response is the JSON envelope every endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse describes the daemon to remote clients.
type StatusResponse struct {
	Hostname       string `json:"hostname"`
	Version        string `json:"version"`
	Kernel         string `json:"kernel,omitempty"`
	Uptime         string `json:"uptime"`
	ConfigPath     string `json:"config_path"`
	InConfigMode   bool   `json:"in_config_mode"`
	Dirty          bool   `json:"dirty"`
	CommitState    string `json:"commit_state"`
	ConfirmPending bool   `json:"confirm_pending"`
	ConfirmBy      string `json:"confirm_by,omitempty"`
	HistoryLength  int    `json:"history_length"`
}

// TextResponse wraps rendered configuration or command output.
type TextResponse struct {
	Output string `json:"output"`
}

// ConfigModeStatus reports the state of the shared candidate.
type ConfigModeStatus struct {
	InConfigMode bool `json:"in_config_mode"`
	Dirty        bool `json:"dirty"`
}

// ConfigInputRequest carries one set or delete line.
type ConfigInputRequest struct {
	Input string `json:"input"`
}

// ConfigExitRequest controls how a configuration session ends.
type ConfigExitRequest struct {
	Discard bool `json:"discard"`
}

// CommitRequest carries commit parameters.
type CommitRequest struct {
	Comment string `json:"comment,omitempty"`
}

// CommitConfirmedRequest arms an auto-rollback window.
type CommitConfirmedRequest struct {
	Minutes int    `json:"minutes"`
	Comment string `json:"comment,omitempty"`
}

// CommitResponse describes a finished commit attempt.
type CommitResponse struct {
	State        string `json:"state"`
	Message      string `json:"message"`
	Changes      int    `json:"changes"`
	ConfirmBy    string `json:"confirm_by,omitempty"`
	PersistError string `json:"persist_error,omitempty"`
}

// RollbackRequest selects which previous configuration to load into
// the candidate. 0 discards to the running configuration, n loads the
// state before the n-th most recent commit.
type RollbackRequest struct {
	N int `json:"n"`
}

// HistoryEntry is one in-memory commit history row. Index matches the
// rollback numbering: rollback 1 restores the state before the most
// recent commit.
type HistoryEntry struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// CompleteRequest asks for completion candidates for a partial line.
type CompleteRequest struct {
	Line string `json:"line"`
	// Mode selects the command tree: "operational" (default) or "config".
	Mode string `json:"mode,omitempty"`
}

// CandidateInfo is one completion row.
type CandidateInfo struct {
	Name string `json:"name"`
	Desc string `json:"desc,omitempty"`
	Hint bool   `json:"hint,omitempty"`
}

// EventEntry is one configuration event on the wire.
type EventEntry struct {
	Seq     uint64 `json:"seq"`
	Time    string `json:"time"`
	Type    string `json:"type"`
	User    string `json:"user,omitempty"`
	Session string `json:"session,omitempty"`
	Summary string `json:"summary"`
	Detail  string `json:"detail,omitempty"`
}
