// Package commit implements the two-phase commit pipeline: snapshot the
// candidate, diff it against running, dispatch each changed subsystem to
// its renderer, then promote and persist. Any render failure backs out
// the renderers that already ran, so the running configuration and the
// system never disagree.
package commit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/configstore"
	"github.com/psaab/netcli/pkg/diff"
	"github.com/psaab/netcli/pkg/errcode"
	"github.com/psaab/netcli/pkg/render"
	"github.com/psaab/netcli/pkg/schema"
)

// State is the observable position of the engine in the commit pipeline.
type State int32

const (
	StateIdle State = iota
	StateDiffing
	StateRendering
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiffing:
		return "diffing"
	case StateRendering:
		return "rendering"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options carries per-commit parameters.
type Options struct {
	Comment string
	User    string
	// Confirmed > 0 arms an automatic rollback that fires unless
	// Confirm is called within the window.
	Confirmed time.Duration
}

// Result describes a finished commit attempt.
type Result struct {
	State   State
	Message string
	Entries []diff.Entry
	// PersistErr is set when the commit succeeded but could not be
	// saved; the in-memory running configuration stays authoritative
	// and a later save retries.
	PersistErr error
	// ConfirmBy is the auto-rollback deadline of a confirmed commit.
	ConfirmBy time.Time

	// priorText is the display form of the configuration that was
	// running before a successful commit; the archive stores it so
	// rollback works past the in-memory history ring.
	priorText string
}

// Recorder archives finished commits. Implementations must not block
// the pipeline longer than necessary; failures are logged, not fatal.
type Recorder interface {
	RecordCommit(ctx context.Context, rec Record) error
}

// Record is the archived form of one commit attempt.
type Record struct {
	Time     time.Time
	User     string
	Comment  string
	Result   string
	Duration time.Duration
	Entries  []diff.Entry
	// Snapshot is the pre-commit running configuration in display
	// form, empty for attempts that changed nothing.
	Snapshot string
}

// Config wires an Engine.
type Config struct {
	Store     *configstore.Store
	Renderers *render.Registry
	// RenderTimeout bounds each renderer call. Zero means 30s.
	RenderTimeout time.Duration
	Logger        *slog.Logger
	Audit         Recorder
	// Notify receives pipeline events ("commit", "rollback", ...).
	Notify func(kind, msg string)
}

const defaultRenderTimeout = 30 * time.Second

var (
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netcli_commits_total",
		Help: "Commit attempts by result.",
	}, []string{"result"})
	renderSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "netcli_render_seconds",
		Help: "Renderer execution time per subsystem.",
	}, []string{"renderer"})
)

// Engine runs commits against one store. Commits are serialized; the
// store stays unlocked while renderers run, so sessions keep editing
// the candidate against the snapshot being committed.
type Engine struct {
	store   *configstore.Store
	reg     *render.Registry
	sch     *schema.Tree
	roots   map[string][]string
	timeout time.Duration
	logger  *slog.Logger
	audit   Recorder
	notify  func(kind, msg string)

	mu      sync.Mutex
	state   atomic.Int32
	pending *pendingConfirm
	last    atomic.Pointer[Result]
}

type pendingConfirm struct {
	timer    *time.Timer
	revert   *config.Tree
	deadline time.Time
}

// New builds an engine, resolving every renderer reference the schema
// declares to its subsystem root.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("commit: store is required")
	}
	if cfg.Renderers == nil {
		return nil, fmt.Errorf("commit: renderer registry is required")
	}
	roots, err := cfg.Store.Schema().RendererRoots()
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	e := &Engine{
		store:   cfg.Store,
		reg:     cfg.Renderers,
		sch:     cfg.Store.Schema(),
		roots:   roots,
		timeout: cfg.RenderTimeout,
		logger:  cfg.Logger,
		audit:   cfg.Audit,
		notify:  cfg.Notify,
	}
	if e.timeout <= 0 {
		e.timeout = defaultRenderTimeout
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.notify == nil {
		e.notify = func(string, string) {}
	}
	return e, nil
}

// ReloadSchema re-resolves renderer roots after a schema swap on the
// store. Blocks until no commit is in flight.
func (e *Engine) ReloadSchema() error {
	sch := e.store.Schema()
	roots, err := sch.RendererRoots()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sch = sch
	e.roots = roots
	return nil
}

// State returns the engine's current pipeline position.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// LastResult returns the most recent commit result, nil before the
// first commit.
func (e *Engine) LastResult() *Result {
	return e.last.Load()
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Commit runs the full pipeline. On success the snapshot becomes the
// running configuration; on any failure the running configuration is
// untouched, byte for byte.
func (e *Engine) Commit(ctx context.Context, opts Options) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A new commit confirms any pending confirmed commit.
	if e.pending != nil {
		e.pending.timer.Stop()
		e.pending = nil
		e.logger.Info("pending confirmed commit superseded")
	}

	started := time.Now()
	res, err := e.run(ctx, opts)
	e.last.Store(res)
	e.record(ctx, opts, res, time.Since(started))
	return res, err
}

func (e *Engine) run(ctx context.Context, opts Options) (*Result, error) {
	e.setState(StateDiffing)

	candidate, err := e.store.CandidateSnapshot()
	if err != nil {
		e.setState(StateIdle)
		return &Result{State: StateIdle, Message: err.Error()}, err
	}
	running := e.store.RunningSnapshot()

	entries := diff.Compare(e.sch, running, candidate)
	if len(entries) == 0 {
		e.setState(StateIdle)
		commitsTotal.WithLabelValues("no-changes").Inc()
		return &Result{State: StateIdle, Message: "no changes to commit"}, nil
	}

	refs, buckets := diff.ByRenderer(entries)
	if res, err := e.check(candidate, running, refs, buckets); err != nil {
		e.setState(StateIdle)
		commitsTotal.WithLabelValues("validation-failed").Inc()
		return res, err
	}

	e.setState(StateRendering)
	rendered := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		ren, _ := e.reg.Get(ref)
		if err := e.render(ctx, ren, e.input(ref, candidate, running, buckets[ref])); err != nil {
			e.backOut(rendered, running)
			e.setState(StateRolledBack)
			commitsTotal.WithLabelValues("render-failed").Inc()
			msg := fmt.Sprintf("render failed: %s: %v", ref, err)
			e.notify("commit-failed", msg)
			return &Result{State: StateRolledBack, Message: msg, Entries: entries},
				errors.Wrap(err, errcode.RenderFailure, "render failed: "+ref)
		}
		rendered = append(rendered, ref)
	}

	e.store.Promote(candidate, opts.Comment, opts.User)
	res := &Result{
		State:     StateCommitted,
		Message:   "commit complete",
		Entries:   entries,
		priorText: priorSnapshot(running),
	}

	if err := e.store.Save(); err != nil {
		res.PersistErr = err
		e.logger.Warn("commit persisted in memory only", "err", err)
	}

	if opts.Confirmed > 0 {
		deadline := time.Now().Add(opts.Confirmed)
		e.pending = &pendingConfirm{
			revert:   running,
			deadline: deadline,
			timer:    time.AfterFunc(opts.Confirmed, e.autoRollback),
		}
		res.ConfirmBy = deadline
	}

	e.setState(StateCommitted)
	commitsTotal.WithLabelValues("committed").Inc()
	e.logger.Info("commit complete", "changes", len(entries), "user", opts.User)
	e.notify("commit", fmt.Sprintf("%d changes committed", len(entries)))
	return res, nil
}

// Check validates the candidate without touching the system: the diff
// is computed and every affected renderer's Check runs, but nothing is
// rendered, promoted, or persisted.
func (e *Engine) Check(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.setState(StateDiffing)
	defer e.setState(StateIdle)

	candidate, err := e.store.CandidateSnapshot()
	if err != nil {
		return &Result{State: StateIdle, Message: err.Error()}, err
	}
	running := e.store.RunningSnapshot()

	entries := diff.Compare(e.sch, running, candidate)
	refs, buckets := diff.ByRenderer(entries)
	if res, err := e.check(candidate, running, refs, buckets); err != nil {
		return res, err
	}
	return &Result{State: StateIdle, Message: "configuration check succeeds", Entries: entries}, nil
}

func (e *Engine) check(candidate, running *config.Tree, refs []string, buckets map[string][]diff.Entry) (*Result, error) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		ren, ok := e.reg.Get(ref)
		if !ok {
			msg := fmt.Sprintf("validation failed: no renderer registered for subsystem %q", ref)
			return &Result{State: StateIdle, Message: msg},
				errors.New(errcode.RenderFailure, msg)
		}
		checker, ok := ren.(render.Checker)
		if !ok {
			continue
		}
		if err := checker.Check(e.input(ref, candidate, running, buckets[ref])); err != nil {
			msg := fmt.Sprintf("validation failed: %s: %v", ref, err)
			return &Result{State: StateIdle, Message: msg},
				errors.Wrap(err, errcode.Validation, "validation failed: "+ref)
		}
	}
	return nil, nil
}

func (e *Engine) render(ctx context.Context, ren render.Renderer, in render.Input) error {
	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	err := ren.Render(rctx, in)
	renderSeconds.WithLabelValues(in.Ref).Observe(time.Since(started).Seconds())
	if err != nil {
		e.logger.Error("renderer failed", "renderer", in.Ref, "err", err)
	}
	return err
}

// backOut re-renders the subsystems that already succeeded with the
// running configuration, most recent first. Best effort: the commit is
// already failed, so back-out errors are logged and skipped. A fresh
// context is used because the commit's may already be cancelled.
func (e *Engine) backOut(rendered []string, running *config.Tree) {
	for i := len(rendered) - 1; i >= 0; i-- {
		ref := rendered[i]
		ren, ok := e.reg.Get(ref)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		if err := ren.Render(ctx, e.input(ref, running, running, nil)); err != nil {
			e.logger.Error("back-out render failed", "renderer", ref, "err", err)
		}
		cancel()
	}
}

// Confirm cancels the pending auto-rollback of a confirmed commit.
func (e *Engine) Confirm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return fmt.Errorf("no confirmed commit pending")
	}
	e.pending.timer.Stop()
	e.pending = nil
	e.logger.Info("commit confirmed")
	e.notify("commit", "confirmed commit acknowledged")
	return nil
}

// Pending returns the auto-rollback deadline of an unconfirmed commit.
func (e *Engine) Pending() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return time.Time{}, false
	}
	return e.pending.deadline, true
}

// autoRollback fires when a confirmed commit's window expires: the
// previous running configuration is re-rendered and reinstated.
func (e *Engine) autoRollback() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return
	}
	revert := e.pending.revert
	e.pending = nil

	e.logger.Warn("confirmed commit expired, rolling back")
	current := e.store.RunningSnapshot()
	entries := diff.Compare(e.sch, current, revert)
	refs, buckets := diff.ByRenderer(entries)
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		ren, ok := e.reg.Get(ref)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		if err := ren.Render(ctx, e.input(ref, revert, current, buckets[ref])); err != nil {
			e.logger.Error("rollback render failed", "renderer", ref, "err", err)
		}
		cancel()
	}
	e.store.Restore(revert)
	if err := e.store.Save(); err != nil {
		e.logger.Warn("rollback persisted in memory only", "err", err)
	}

	e.setState(StateRolledBack)
	commitsTotal.WithLabelValues("auto-rollback").Inc()
	e.notify("rollback", "confirmed commit expired, configuration rolled back")
	res := &Result{State: StateRolledBack, Message: "confirmed commit expired, configuration rolled back"}
	e.last.Store(res)
}

func (e *Engine) input(ref string, target, running *config.Tree, entries []diff.Entry) render.Input {
	path := e.roots[ref]
	return render.Input{
		Ref:     ref,
		Path:    path,
		Subtree: target.FindPath(path...),
		Running: running.FindPath(path...),
		Entries: entries,
	}
}

// priorSnapshot renders the pre-commit configuration for the archive.
// An empty configuration formats to the empty string, which the archive
// reads as no snapshot, so it is stored as a blank line instead.
func priorSnapshot(t *config.Tree) string {
	if text := t.Format(); text != "" {
		return text
	}
	return "\n"
}

func (e *Engine) record(ctx context.Context, opts Options, res *Result, took time.Duration) {
	if e.audit == nil || res == nil {
		return
	}
	rec := Record{
		Time:     time.Now(),
		User:     opts.User,
		Comment:  opts.Comment,
		Result:   res.Message,
		Duration: took,
		Entries:  res.Entries,
		Snapshot: res.priorText,
	}
	if err := e.audit.RecordCommit(ctx, rec); err != nil {
		e.logger.Warn("audit record failed", "err", err)
	}
}
