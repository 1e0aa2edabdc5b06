// Package cli implements the interactive operator shell: a readline loop
// over the operational and configuration command trees, with '?' help,
// tab completion, and JunOS-style output filters after '|'.
//
// The shell owns no configuration state. Operational commands resolve
// against the operational schema and mostly exec an external tool;
// configuration mode drives the store and the commit engine.
package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"

	"github.com/psaab/netcli/pkg/audit"
	"github.com/psaab/netcli/pkg/commit"
	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/configstore"
	"github.com/psaab/netcli/pkg/errcode"
	"github.com/psaab/netcli/pkg/logging"
	"github.com/psaab/netcli/pkg/schema"
)

// errExit signals a clean shell exit out of the dispatch loop.
var errExit = fmt.Errorf("exit")

// interruptExitWindow is how quickly a second Ctrl-C must follow the
// first to quit the shell.
const interruptExitWindow = 2 * time.Second

// logShowLimit bounds the events printed by "show log".
const logShowLimit = 100

// Options configures a CLI.
type Options struct {
	Store    *configstore.Store
	Engine   *commit.Engine
	Schemas  *schema.Set
	Registry schema.Lookup
	// Events receives session and configuration events and feeds
	// "show log". Optional.
	Events *logging.EventBuffer
	// Archive serves "show system commit" and rollback points past
	// the in-memory history ring. Optional.
	Archive *audit.Store

	Hostname    string // defaults to os.Hostname
	Username    string // defaults to $USER
	Version     string
	HistoryFile string
	Out         io.Writer // defaults to os.Stdout
}

// CLI is one interactive session. Not safe for concurrent use; the
// daemon runs exactly one console session. The matchers sit behind
// atomic pointers so a schema reload can swap them mid-session.
type CLI struct {
	store    *configstore.Store
	engine   *commit.Engine
	opMatch  atomic.Pointer[schema.Matcher]
	cfgMatch atomic.Pointer[schema.Matcher]
	events   *logging.EventBuffer
	archive  *audit.Store

	hostname    string
	username    string
	version     string
	historyFile string
	out         io.Writer

	rl      *readline.Instance
	lastInt time.Time

	mu        sync.Mutex
	cancelCmd context.CancelFunc
}

// New assembles a CLI over an open store and commit engine.
func New(opts Options) (*CLI, error) {
	if opts.Store == nil || opts.Engine == nil || opts.Schemas == nil {
		return nil, fmt.Errorf("cli: store, engine, and schemas are required")
	}
	c := &CLI{
		store:       opts.Store,
		engine:      opts.Engine,
		events:      opts.Events,
		archive:     opts.Archive,
		hostname:    opts.Hostname,
		username:    opts.Username,
		version:     opts.Version,
		historyFile: opts.HistoryFile,
		out:         opts.Out,
	}
	c.ReloadSchemas(opts.Schemas, opts.Registry)
	if c.hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.hostname = h
		} else {
			c.hostname = "netcli"
		}
	}
	if c.username == "" {
		c.username = os.Getenv("USER")
		if c.username == "" {
			c.username = "admin"
		}
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	return c, nil
}

// ReloadSchemas swaps the command trees the shell resolves against.
// Safe to call while the shell is reading; the swap applies from the
// next line.
func (c *CLI) ReloadSchemas(s *schema.Set, reg schema.Lookup) {
	c.opMatch.Store(schema.NewMatcher(s.Operational, reg))
	c.cfgMatch.Store(schema.NewMatcher(s.Commands, reg))
}

func (c *CLI) prompt() string {
	if c.store.InConfigMode() {
		return fmt.Sprintf("[edit]\n%s@%s# ", c.username, c.hostname)
	}
	return fmt.Sprintf("%s@%s> ", c.username, c.hostname)
}

func (c *CLI) setPrompt() {
	if c.rl != nil {
		c.rl.SetPrompt(c.prompt())
	}
}

// helpOut returns the writer for help tables. readline's wrapped stdout
// redraws the prompt and pending input after the table.
func (c *CLI) helpOut() io.Writer {
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return c.out
}

// Run drives the interactive loop until "exit", EOF, or a double Ctrl-C.
func (c *CLI) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     c.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &completer{cli: c},
		Listener:        readline.FuncListener(c.helpListener),
	})
	if err != nil {
		return err
	}
	c.rl = rl
	defer func() {
		c.rl = nil
		rl.Close()
	}()

	// Ctrl-C during an external command lands as SIGINT because the
	// terminal is cooked while readline is not reading.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigCh:
				c.interrupt()
			case <-done:
				return
			}
		}
	}()

	c.eventf(logging.EventSessionOpen, "console session opened")
	defer c.eventf(logging.EventSessionClose, "console session closed")

	for {
		line, err := rl.Readline()
		switch {
		case err == readline.ErrInterrupt:
			if time.Since(c.lastInt) < interruptExitWindow {
				return nil
			}
			c.lastInt = time.Now()
			continue
		case err == io.EOF:
			if c.store.InConfigMode() {
				if c.store.IsDirty() {
					fmt.Fprintln(c.out, "uncommitted changes, use 'commit' or 'exit discard'")
					continue
				}
				c.leaveConfig()
				rl.SetPrompt(c.prompt())
				continue
			}
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := c.Dispatch(ctx, line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		rl.SetPrompt(c.prompt())
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Dispatch executes one command line in the current mode. A trailing
// "| <filter>" stage is stripped off and applied to the captured output.
func (c *CLI) Dispatch(ctx context.Context, line string) error {
	base, f, err := extractPipe(line)
	if err != nil {
		return err
	}
	if f == nil {
		return c.dispatch(ctx, base)
	}

	var buf bytes.Buffer
	prev := c.out
	c.out = &buf
	err = c.dispatch(ctx, base)
	c.out = prev
	if err != nil {
		return err
	}
	return f.apply(c.out, buf.String())
}

func (c *CLI) dispatch(ctx context.Context, line string) error {
	if c.store.InConfigMode() {
		return c.dispatchConfig(ctx, line)
	}
	return c.dispatchOperational(ctx, line)
}

// dispatchOperational resolves the line against the operational tree.
// Nodes carrying a command template exec it; the rest are built in.
func (c *CLI) dispatchOperational(ctx context.Context, line string) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil
	}
	match, err := c.opMatch.Load().Resolve(tokens)
	if err != nil {
		return err
	}

	if cmd := match.ExpandCommand(); cmd != "" {
		if literalPath(match) == "show version" && c.version != "" {
			fmt.Fprintf(c.out, "netcli %s\n", c.version)
		}
		return c.execCommand(ctx, cmd)
	}

	switch literalPath(match) {
	case "configure":
		return c.enterConfigure()
	case "exit":
		return errExit
	case "show configuration":
		text, err := c.store.ShowRunning(nil)
		if err != nil {
			return err
		}
		fmt.Fprint(c.out, text)
		return nil
	case "show configuration commands":
		fmt.Fprint(c.out, c.store.ShowRunningSet())
		return nil
	case "show log":
		return c.showLog()
	case "show system commit":
		return c.showCommitHistory(ctx)
	}
	return errors.New(errcode.IncompleteCommand, "incomplete command")
}

// dispatchConfig handles configuration mode. The verbs mirror the
// commands schema; values are shell-quoted so descriptions with spaces
// survive as one token.
func (c *CLI) dispatchConfig(ctx context.Context, line string) error {
	parts, err := shellquote.Split(line)
	if err != nil {
		return errors.Wrap(err, errcode.NoSuchCommand, "parse command line")
	}
	if len(parts) == 0 {
		return nil
	}
	args := parts[1:]

	switch parts[0] {
	case "set":
		if len(args) == 0 {
			return errors.New(errcode.IncompleteCommand, "set requires a configuration path")
		}
		return c.store.Set(args)
	case "delete":
		if len(args) == 0 {
			return errors.New(errcode.IncompleteCommand, "delete requires a configuration path")
		}
		return c.store.Delete(args)
	case "show":
		return c.handleConfigShow(args)
	case "compare":
		if len(args) > 0 && args[0] == "commands" {
			fmt.Fprint(c.out, c.store.CompareCommands())
		} else {
			fmt.Fprint(c.out, c.store.Compare())
		}
		return nil
	case "commit":
		return c.handleCommit(ctx, args)
	case "discard":
		if err := c.store.Discard(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "changes discarded")
		return nil
	case "rollback":
		return c.handleRollback(ctx, args)
	case "save":
		if err := c.store.Save(); err != nil {
			return err
		}
		c.eventf(logging.EventSave, "configuration saved to %s", c.store.Path())
		fmt.Fprintf(c.out, "configuration saved to %s\n", c.store.Path())
		return nil
	case "run":
		if len(args) == 0 {
			return errors.New(errcode.IncompleteCommand, "run requires an operational command")
		}
		return c.dispatchOperational(ctx, strings.Join(args, " "))
	case "history":
		return c.showCommitHistory(ctx)
	case "exit", "quit":
		return c.exitConfigure(args)
	default:
		return errors.New(errcode.NoSuchCommand, fmt.Sprintf("unknown command %q", parts[0]))
	}
}

// handleConfigShow renders the candidate, optionally scoped to a path.
// "| compare" and "| display set" switch the rendering; output filters
// were already stripped by Dispatch.
func (c *CLI) handleConfigShow(args []string) error {
	display := ""
	if i := indexToken(args, "|"); i >= 0 {
		mod := args[i+1:]
		args = args[:i]
		switch {
		case len(mod) == 1 && mod[0] == "compare":
			display = "compare"
		case len(mod) == 2 && mod[0] == "display" && mod[1] == "set":
			display = "set"
		default:
			return errors.New(errcode.NoSuchCommand, fmt.Sprintf("unknown display filter %q", strings.Join(mod, " ")))
		}
	}

	switch display {
	case "compare":
		if len(args) > 0 {
			return errors.New(errcode.InvalidPath, "compare shows the full configuration")
		}
		fmt.Fprint(c.out, c.store.Compare())
		return nil
	case "set":
		text := c.store.ShowCandidateSet()
		if len(args) > 0 {
			text = filterSetLines(text, args)
		}
		fmt.Fprint(c.out, text)
		return nil
	}

	text, err := c.store.ShowCandidate(args)
	if err != nil {
		return err
	}
	fmt.Fprint(c.out, text)
	return nil
}

// handleCommit parses the commit arguments and runs the engine. Failure
// results carry their own message, so errors the engine already
// described are not reported twice.
func (c *CLI) handleCommit(ctx context.Context, args []string) error {
	opts := commit.Options{User: c.username}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "check":
			res, err := c.engine.Check(ctx)
			if res == nil {
				return err
			}
			fmt.Fprintln(c.out, res.Message)
			return nil
		case "comment":
			if i+1 >= len(args) {
				return errors.New(errcode.IncompleteCommand, "commit comment requires text")
			}
			i++
			opts.Comment = args[i]
		case "confirmed":
			opts.Confirmed = 10 * time.Minute
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil || n < 1 {
					return errors.New(errcode.Validation, fmt.Sprintf("invalid confirm timeout %q", args[i+1]))
				}
				opts.Confirmed = time.Duration(n) * time.Minute
				i++
			}
		default:
			return errors.New(errcode.NoSuchCommand, fmt.Sprintf("unknown commit argument %q", args[i]))
		}
	}

	res, err := c.engine.Commit(ctx, opts)
	if res == nil {
		return err
	}
	fmt.Fprintln(c.out, res.Message)
	if res.PersistErr != nil {
		fmt.Fprintf(c.out, "warning: running configuration not saved: %v\n", res.PersistErr)
	}
	if !res.ConfirmBy.IsZero() {
		fmt.Fprintf(c.out, "commit will be rolled back at %s unless confirmed by a new commit\n",
			res.ConfirmBy.Format("15:04:05"))
	}
	return nil
}

func (c *CLI) handleRollback(ctx context.Context, args []string) error {
	n := 0
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return errors.New(errcode.Validation, fmt.Sprintf("invalid rollback number %q", args[0]))
		}
		n = v
	}
	if err := c.store.Rollback(n); err != nil {
		if n == 0 || c.archive == nil || !c.store.InConfigMode() {
			return err
		}
		if err := c.rollbackFromArchive(ctx, n); err != nil {
			return err
		}
	}
	c.eventf(logging.EventRollback, "loaded rollback %d into the candidate", n)
	fmt.Fprintf(c.out, "load complete from rollback %d\n", n)
	return nil
}

// rollbackFromArchive serves rollback points the in-memory ring no
// longer holds, typically after a daemon restart. The archive numbers
// successful commits the same way the ring does.
func (c *CLI) rollbackFromArchive(ctx context.Context, n int) error {
	text, err := c.archive.SnapshotBefore(ctx, n)
	if err != nil {
		return err
	}
	tree, err := config.ParseText(text)
	if err != nil {
		return fmt.Errorf("parse archived rollback %d: %w", n, err)
	}
	return c.store.LoadCandidate(tree)
}

func (c *CLI) enterConfigure() error {
	if err := c.store.EnterConfigure(); err != nil {
		return err
	}
	c.eventf(logging.EventConfigMode, "entered configuration mode")
	fmt.Fprintln(c.out, "Entering configuration mode")
	c.setPrompt()
	return nil
}

// exitConfigure leaves configuration mode. A dirty candidate blocks the
// plain exit; "exit discard" always leaves and drops the changes.
func (c *CLI) exitConfigure(args []string) error {
	if len(args) > 0 && args[0] == "discard" {
		c.leaveConfig()
		return nil
	}
	if c.store.IsDirty() {
		return fmt.Errorf("cannot exit: uncommitted changes (commit them or use 'exit discard')")
	}
	c.leaveConfig()
	return nil
}

func (c *CLI) leaveConfig() {
	c.store.ExitConfigure()
	c.eventf(logging.EventConfigMode, "left configuration mode")
	fmt.Fprintln(c.out, "Exiting configuration mode")
	c.setPrompt()
}

// showLog prints the most recent configuration events, oldest first.
func (c *CLI) showLog() error {
	if c.events == nil {
		fmt.Fprintln(c.out, "event log not available")
		return nil
	}
	recs := c.events.Latest(logShowLimit)
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		user := r.User
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(c.out, "%s  %-12s %-10s %s\n",
			r.Time.Format("Jan _2 15:04:05"), r.Type, user, r.Summary)
	}
	return nil
}

// commitListLimit bounds the entries printed by "show system commit".
const commitListLimit = 50

// showCommitHistory lists past commits. The left column is the number
// "rollback <n>" takes. With an archive attached the listing survives
// restarts; otherwise it reflects the in-memory ring.
func (c *CLI) showCommitHistory(ctx context.Context) error {
	if c.archive != nil {
		rows, err := c.archive.Successes(ctx, commitListLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(c.out, "no commits recorded")
			return nil
		}
		for i, e := range rows {
			c.printCommitRow(i+1, e.Time, e.User, e.Comment)
		}
		return nil
	}

	entries := c.store.History()
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no commits recorded")
		return nil
	}
	for i, e := range entries {
		c.printCommitRow(i+1, e.Timestamp, e.User, e.Comment)
	}
	return nil
}

func (c *CLI) printCommitRow(n int, when time.Time, user, comment string) {
	if user == "" {
		user = "-"
	}
	if comment == "" {
		comment = "-"
	}
	fmt.Fprintf(c.out, "%-3d %s  %-10s %s\n",
		n, when.Format("2006-01-02 15:04:05"), user, comment)
}

// execCommand runs an expanded command template. The command is
// cancellable through interrupt, so Ctrl-C stops a running ping without
// killing the shell.
func (c *CLI) execCommand(ctx context.Context, cmdline string) error {
	argv, err := shellquote.Split(cmdline)
	if err != nil {
		return fmt.Errorf("parse command template: %w", err)
	}
	if len(argv) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.startCommand(cancel)
	defer c.endCommand()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = c.out
	cmd.Stderr = c.out
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(c.out, "^C")
			return nil
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

func (c *CLI) startCommand(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancelCmd = cancel
	c.mu.Unlock()
}

func (c *CLI) endCommand() {
	c.mu.Lock()
	c.cancelCmd = nil
	c.mu.Unlock()
}

// interrupt cancels the running external command, if any.
func (c *CLI) interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelCmd == nil {
		return false
	}
	c.cancelCmd()
	c.cancelCmd = nil
	return true
}

func (c *CLI) eventf(typ, format string, args ...any) {
	if c.events == nil {
		return
	}
	c.events.Add(logging.EventRecord{
		Type:    typ,
		User:    c.username,
		Session: "console",
		Summary: fmt.Sprintf(format, args...),
	})
}

// literalPath joins the non-tag tokens of a match, naming the command
// independent of its arguments.
func literalPath(m *schema.Match) string {
	parts := make([]string, 0, len(m.Steps))
	for _, s := range m.Steps {
		if !s.IsTag {
			parts = append(parts, s.Node.Name)
		}
	}
	return strings.Join(parts, " ")
}

func indexToken(tokens []string, want string) int {
	for i, t := range tokens {
		if t == want {
			return i
		}
	}
	return -1
}

// filterSetLines keeps the set commands at or under the given path.
func filterSetLines(text string, path []string) string {
	prefix := "set " + strings.Join(path, " ")
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if line == prefix || strings.HasPrefix(line, prefix+" ") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
