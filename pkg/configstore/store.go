// Package configstore holds the running and candidate configuration
// trees behind a single lock: schema-validated edits, candidate/running
// comparison, commit history, and persistence.
package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/kballard/go-shellquote"

	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/diff"
	"github.com/psaab/netcli/pkg/errcode"
	"github.com/psaab/netcli/pkg/schema"
)

// Store manages the running and candidate configuration. The candidate
// exists only while a configuration session is open; a second session
// cannot open until the first exits.
type Store struct {
	mu        sync.RWMutex
	running   *config.Tree
	candidate *config.Tree
	schema    *schema.Tree
	matcher   *schema.Matcher
	history   *History
	filePath  string
}

// New creates a store validating edits against the given configuration
// schema. filePath is where Save persists the running configuration;
// empty disables persistence.
func New(sch *schema.Tree, reg schema.Lookup, filePath string) *Store {
	return &Store{
		running:  &config.Tree{},
		schema:   sch,
		matcher:  schema.NewMatcher(sch, reg),
		history:  NewHistory(50),
		filePath: filePath,
	}
}

// Schema returns the configuration schema the store validates against.
func (s *Store) Schema() *schema.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

// Matcher returns the path matcher for the configuration schema.
func (s *Store) Matcher() *schema.Matcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matcher
}

// SetSchema swaps the configuration schema. The running and candidate
// trees keep their contents; the next edit validates against the new
// schema.
func (s *Store) SetSchema(sch *schema.Tree, reg schema.Lookup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = sch
	s.matcher = schema.NewMatcher(sch, reg)
}

// Path returns the persistence path, empty if persistence is disabled.
func (s *Store) Path() string { return s.filePath }

// Load reads the persisted running configuration. A missing file starts
// an empty configuration. The file is parsed but not schema-checked, so
// a schema change never prevents startup; stale statements surface in
// the next commit diff instead.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	tree, err := config.ParseText(string(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.filePath, err)
	}
	s.running = tree
	return nil
}

// Save persists the running configuration: the display form at the
// store's path and the JSON form in a sidecar next to it.
func (s *Store) Save() error {
	s.mu.RLock()
	running := s.running
	path := s.filePath
	s.mu.RUnlock()

	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(running.Format()), 0644); err != nil {
		return errors.Wrap(err, errcode.PersistFailure, "write config")
	}
	data, err := running.ExportJSON()
	if err != nil {
		return errors.Wrap(err, errcode.PersistFailure, "encode config")
	}
	if err := os.WriteFile(jsonSidecar(path), data, 0644); err != nil {
		return errors.Wrap(err, errcode.PersistFailure, "write config json")
	}
	return nil
}

func jsonSidecar(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
}

// EnterConfigure opens a configuration session, seeding the candidate
// from the running configuration.
func (s *Store) EnterConfigure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate != nil {
		return errors.New(errcode.ConfigLocked, "configuration mode is locked by another session")
	}
	s.candidate = s.running.Clone()
	return nil
}

// ExitConfigure closes the configuration session, dropping any
// uncommitted candidate changes.
func (s *Store) ExitConfigure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidate = nil
}

// InConfigMode reports whether a configuration session is open.
func (s *Store) InConfigMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candidate != nil
}

// IsDirty reports whether the candidate holds uncommitted changes. It
// agrees with the commit engine: a candidate whose diff is empty is
// clean even if statement order moved.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.candidate == nil {
		return false
	}
	return len(diff.Compare(s.schema, s.running, s.candidate)) > 0
}

// Set validates a configuration path against the schema and merges it
// into the candidate.
func (s *Store) Set(tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return fmt.Errorf("not in configuration mode")
	}
	if len(tokens) == 0 {
		return errors.New(errcode.IncompleteCommand, "set requires a configuration path")
	}
	match, err := s.matcher.Match(tokens)
	if err != nil {
		return pathErr(err)
	}
	if match.Node.Tag != nil && len(match.Node.Children) == 0 {
		return errors.New(errcode.IncompleteCommand,
			fmt.Sprintf("path requires a value: %s", match.Node.Tag.Placeholder()))
	}
	return s.candidate.Set(config.SplitPath(match.Steps))
}

// SetFromInput parses a quoted command line and applies it as Set.
func (s *Store) SetFromInput(line string) error {
	tokens, err := shellquote.Split(line)
	if err != nil {
		return errors.New(errcode.InvalidPath, fmt.Sprintf("parse input: %v", err))
	}
	return s.Set(tokens)
}

// Delete removes the subtree at a configuration path from the
// candidate. Deleting an absent path is a no-op.
func (s *Store) Delete(tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return fmt.Errorf("not in configuration mode")
	}
	if len(tokens) == 0 {
		return errors.New(errcode.IncompleteCommand, "delete requires a configuration path")
	}
	match, err := s.matcher.Match(tokens)
	if err != nil {
		return pathErr(err)
	}
	return s.candidate.Delete(config.SplitPath(match.Steps))
}

// DeleteFromInput parses a quoted command line and applies it as Delete.
func (s *Store) DeleteFromInput(line string) error {
	tokens, err := shellquote.Split(line)
	if err != nil {
		return errors.New(errcode.InvalidPath, fmt.Sprintf("parse input: %v", err))
	}
	return s.Delete(tokens)
}

// Get returns the configuration nodes at a path: candidate nodes inside
// a session, running nodes outside.
func (s *Store) Get(tokens []string) ([]*config.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(tokens) == 0 {
		return nil, errors.New(errcode.IncompleteCommand, "get requires a configuration path")
	}
	match, err := s.matcher.Match(tokens)
	if err != nil {
		return nil, pathErr(err)
	}
	nodes := s.view().Find(config.SplitPath(match.Steps))
	if len(nodes) == 0 {
		return nil, errors.New(errcode.NotFound,
			fmt.Sprintf("configuration path not found: %s", strings.Join(tokens, " ")))
	}
	return nodes, nil
}

// view returns the tree reads should see. Callers hold the lock.
func (s *Store) view() *config.Tree {
	if s.candidate != nil {
		return s.candidate
	}
	return s.running
}

// ShowCandidate renders the candidate configuration (the running
// configuration outside a session), optionally filtered to a path.
func (s *Store) ShowCandidate(tokens []string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.render(s.view(), tokens)
}

// ShowRunning renders the running configuration, optionally filtered to
// a path.
func (s *Store) ShowRunning(tokens []string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.render(s.running, tokens)
}

func (s *Store) render(tree *config.Tree, tokens []string) (string, error) {
	if len(tokens) == 0 {
		return tree.Format(), nil
	}
	match, err := s.matcher.Match(tokens)
	if err != nil {
		return "", pathErr(err)
	}
	nodes := tree.Find(config.SplitPath(match.Steps))
	if len(nodes) == 0 {
		return "", errors.New(errcode.NotFound,
			fmt.Sprintf("configuration path not found: %s", strings.Join(tokens, " ")))
	}
	// A single interior match shows its contents without the enclosing
	// block, the way show is scoped on real routers.
	if len(nodes) == 1 && !nodes[0].Leaf() {
		return config.FormatNodes(nodes[0].Children), nil
	}
	return config.FormatNodes(nodes), nil
}

// ShowCandidateSet renders the candidate as flat set commands.
func (s *Store) ShowCandidateSet() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().FormatSet()
}

// ShowRunningSet renders the running configuration as flat set commands.
func (s *Store) ShowRunningSet() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running.FormatSet()
}

// Diff returns the leaf-level differences between the running and
// candidate configurations, in schema order.
func (s *Store) Diff() []diff.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.candidate == nil {
		return nil
	}
	return diff.Compare(s.schema, s.running, s.candidate)
}

// Compare renders the pending changes in the hierarchical [edit] form.
func (s *Store) Compare() string {
	entries := s.Diff()
	if len(entries) == 0 {
		return "[no changes]\n"
	}
	return diff.Hierarchical(entries)
}

// CompareCommands renders the pending changes as set commands.
func (s *Store) CompareCommands() string {
	entries := s.Diff()
	if len(entries) == 0 {
		return "[no changes]\n"
	}
	return diff.SetLines(entries)
}

// Discard resets the candidate to the running configuration.
func (s *Store) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return fmt.Errorf("not in configuration mode")
	}
	s.candidate = s.running.Clone()
	return nil
}

// Rollback loads a previous configuration into the candidate: 0 is the
// running configuration, n the state before the n-th most recent
// commit. The result still needs a commit to take effect.
func (s *Store) Rollback(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return fmt.Errorf("not in configuration mode")
	}
	if n == 0 {
		s.candidate = s.running.Clone()
		return nil
	}
	entry, err := s.history.Get(n - 1)
	if err != nil {
		return err
	}
	s.candidate = entry.Config.Clone()
	return nil
}

// LoadCandidate replaces the candidate with the given tree. Used when a
// rollback point comes from the commit archive instead of the history
// ring.
func (s *Store) LoadCandidate(t *config.Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return fmt.Errorf("not in configuration mode")
	}
	s.candidate = t.Clone()
	return nil
}

// CandidateSnapshot returns a deep copy of the candidate for the commit
// engine to diff and render without holding the store lock.
func (s *Store) CandidateSnapshot() (*config.Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.candidate == nil {
		return nil, fmt.Errorf("not in configuration mode")
	}
	return s.candidate.Clone(), nil
}

// RunningSnapshot returns a deep copy of the running configuration.
func (s *Store) RunningSnapshot() *config.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running.Clone()
}

// Promote installs a committed snapshot as the running configuration,
// pushing the previous running configuration onto the history ring and
// rebasing the open candidate onto the new running.
func (s *Store) Promote(snapshot *config.Tree, comment, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Push(&HistoryEntry{
		Config:    s.running,
		Timestamp: time.Now(),
		Comment:   comment,
		User:      user,
	})
	s.running = snapshot
	if s.candidate != nil {
		s.candidate = snapshot.Clone()
	}
}

// Restore reinstates a previous running configuration without recording
// history. Used when a confirmed commit expires.
func (s *Store) Restore(snapshot *config.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = snapshot
	if s.candidate != nil {
		s.candidate = snapshot.Clone()
	}
}

// History returns the commit history, most recent first.
func (s *Store) History() []*HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.List()
}

// SetHistoryLimit bounds the in-memory rollback ring.
func (s *Store) SetHistoryLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Resize(n)
}

// pathErr maps matcher failures onto configuration-path errors.
// Validator rejections keep their own code so callers can distinguish
// a bad value from a path that does not exist in the schema.
func pathErr(err error) error {
	if err == nil || errcode.Is(err, errcode.Validation) {
		return err
	}
	return errors.Wrap(err, errcode.InvalidPath, "invalid configuration path")
}
