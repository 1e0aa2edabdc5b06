// Package daemon implements the netclid lifecycle: bootstrap, schema
// loading, the configuration store, the commit pipeline and its
// renderers, the HTTP admin API, and the local console, with
// coordinated shutdown.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/psaab/netcli/pkg/api"
	"github.com/psaab/netcli/pkg/audit"
	"github.com/psaab/netcli/pkg/cli"
	"github.com/psaab/netcli/pkg/commit"
	"github.com/psaab/netcli/pkg/configstore"
	"github.com/psaab/netcli/pkg/logging"
	"github.com/psaab/netcli/pkg/render"
	"github.com/psaab/netcli/pkg/render/frr"
	"github.com/psaab/netcli/pkg/render/netifc"
	"github.com/psaab/netcli/pkg/render/sysconf"
	"github.com/psaab/netcli/pkg/schema"
	"github.com/psaab/netcli/pkg/valid"
)

// eventBufferSize bounds the in-memory event ring shared by the
// console, the API, and the SSE stream.
const eventBufferSize = 1000

// Options configures the daemon. Non-zero values override the
// bootstrap file.
type Options struct {
	BootstrapFile string // empty = DefaultBootstrapPath when present
	ConfigDir     string
	SchemaDir     string
	APIAddr       string
	Hostname      string
	NoRenderers   bool // log commits instead of touching the system
	NoConsole     bool // run headless, API only
	Debug         bool
	Version       string
}

// Daemon is the netclid process.
type Daemon struct {
	opts Options
	boot *Bootstrap

	store     *configstore.Store
	registry  schema.Lookup
	renderers *render.Registry
	engine    *commit.Engine
	events    *logging.EventBuffer
	archive   *audit.Store
	apiSrv    *api.Server
	console   *cli.CLI
}

// New loads the bootstrap file and applies option overrides. The
// default bootstrap path is used only when the file exists, so a fresh
// host starts on built-in defaults.
func New(opts Options) (*Daemon, error) {
	path := opts.BootstrapFile
	if path == "" {
		if _, err := os.Stat(DefaultBootstrapPath); err == nil {
			path = DefaultBootstrapPath
		}
	}
	boot, err := LoadBootstrap(path)
	if err != nil {
		return nil, err
	}
	if opts.ConfigDir != "" {
		boot.ConfigDir = opts.ConfigDir
	}
	if opts.SchemaDir != "" {
		boot.SchemaDir = opts.SchemaDir
	}
	if opts.APIAddr != "" {
		boot.APIListen = opts.APIAddr
	}
	if opts.Hostname != "" {
		boot.Hostname = opts.Hostname
	}
	return &Daemon{opts: opts, boot: boot}, nil
}

// Run starts the daemon and blocks until the console exits, a server
// fails, or a termination signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	closeLogs := d.setupLogging()
	defer closeLogs()

	slog.Info("starting netclid",
		"version", d.opts.Version,
		"config", d.boot.configPath(),
		"pid", os.Getpid())

	if err := os.MkdirAll(d.boot.ConfigDir, 0755); err != nil {
		slog.Warn("config directory unavailable", "dir", d.boot.ConfigDir, "err", err)
	}

	schemas, err := d.loadSchemas()
	if err != nil {
		return err
	}
	d.registry = valid.Default()

	d.store = configstore.New(schemas.Config, d.registry, d.boot.configPath())
	d.store.SetHistoryLimit(d.boot.HistorySize)
	if err := d.store.Load(); err != nil {
		slog.Warn("configuration load failed, starting empty", "err", err)
	} else if _, err := os.Stat(d.store.Path()); err == nil {
		slog.Info("configuration loaded", "file", d.store.Path())
	}

	d.renderers = render.NewRegistry()
	if err := d.registerRenderers(); err != nil {
		return err
	}
	for _, ref := range missingRenderers(d.renderers, d.store.Schema()) {
		slog.Warn("schema names a renderer with no implementation", "renderer", ref)
	}

	d.events = logging.NewEventBuffer(eventBufferSize)

	if d.boot.CommitDB != "" {
		arch, err := audit.Open(d.boot.CommitDB)
		if err != nil {
			slog.Warn("commit archive unavailable", "path", d.boot.CommitDB, "err", err)
		} else {
			d.archive = arch
			defer arch.Close()
		}
	}

	ecfg := commit.Config{
		Store:         d.store,
		Renderers:     d.renderers,
		RenderTimeout: d.boot.RendererTimeout.Duration,
		Notify: func(kind, msg string) {
			d.events.Add(logging.EventRecord{Type: kind, User: "system", Summary: msg})
		},
	}
	if d.archive != nil {
		ecfg.Audit = d.archive
	}
	d.engine, err = commit.New(ecfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	d.apiSrv = api.NewServer(api.Config{
		Addr:     d.boot.APIListen,
		TLSAddr:  d.boot.APITLSListen,
		TLS:      d.boot.APITLSListen != "",
		TLSDir:   filepath.Join(d.boot.ConfigDir, "tls"),
		Auth:     d.boot.authConfig(),
		Store:    d.store,
		Engine:   d.engine,
		Schemas:  schemas,
		Registry: d.registry,
		Events:   d.events,
		Archive:  d.archive,
		Hostname: d.boot.Hostname,
		Version:  d.opts.Version,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.apiSrv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	if d.boot.SchemaDir != "" {
		w, err := newSchemaWatcher(d.boot.SchemaDir, d.reloadSchemas)
		if err != nil {
			slog.Warn("schema watcher unavailable", "dir", d.boot.SchemaDir, "err", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.run(ctx)
			}()
		}
	}

	if !d.opts.NoConsole {
		console, err := cli.New(cli.Options{
			Store:       d.store,
			Engine:      d.engine,
			Schemas:     schemas,
			Registry:    d.registry,
			Events:      d.events,
			Archive:     d.archive,
			Hostname:    d.boot.Hostname,
			Version:     d.opts.Version,
			HistoryFile: consoleHistoryPath(),
		})
		if err != nil {
			return err
		}
		d.console = console
		go func() {
			err := console.Run(ctx)
			if err != nil {
				err = fmt.Errorf("console: %w", err)
			}
			errCh <- err
		}()
	}

	var runErr error
	select {
	case err := <-errCh:
		runErr = err
	case <-ctx.Done():
		slog.Info("signal received, shutting down")
	}

	stop()
	wg.Wait()

	slog.Info("shutdown complete")
	return runErr
}

// setupLogging installs the process-wide logger: a text handler on
// stderr, teed to the bootstrap's syslog target when one is set. The
// returned func closes the syslog connection.
func (d *Daemon) setupLogging() func() {
	level := d.boot.slogLevel()
	if d.opts.Debug {
		level = slog.LevelDebug
	}
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	tee := logging.NewTeeHandler(base)
	slog.SetDefault(slog.New(tee))

	if d.boot.Syslog.Host != "" {
		client, err := logging.NewSyslogClientTransport(
			d.boot.Syslog.Host, d.boot.Syslog.Port,
			d.boot.Hostname, d.boot.Syslog.Protocol, nil)
		if err != nil {
			slog.Warn("syslog target unavailable",
				"host", d.boot.Syslog.Host, "err", err)
		} else {
			client.Facility = logging.ParseFacility(d.boot.Syslog.Facility)
			client.MinSeverity = logging.ParseSeverity(d.boot.Syslog.Severity)
			tee.SetSinks([]logging.Sink{client})
			slog.Info("syslog forwarding enabled",
				"host", d.boot.Syslog.Host,
				"port", d.boot.Syslog.Port,
				"protocol", d.boot.Syslog.Protocol)
		}
	}
	return tee.Close
}

func (b *Bootstrap) slogLevel() slog.Level {
	switch b.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadSchemas reads the schema documents from the bootstrap's schema
// directory, falling back to the embedded set when no directory is
// configured.
func (d *Daemon) loadSchemas() (*schema.Set, error) {
	if d.boot.SchemaDir == "" {
		return schema.DefaultSet()
	}
	set, err := schema.LoadDir(d.boot.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	slog.Info("schemas loaded", "dir", d.boot.SchemaDir)
	return set, nil
}

// registerRenderers binds a renderer to every subsystem the platform
// supports. With NoRenderers each schema-declared reference gets a
// log-only stand-in, so the commit pipeline runs end to end on hosts
// the daemon must not touch.
func (d *Daemon) registerRenderers() error {
	if d.opts.NoRenderers {
		roots, err := d.store.Schema().RendererRoots()
		if err != nil {
			return err
		}
		for ref := range roots {
			ren := render.Func{
				Name: ref,
				Fn: func(ctx context.Context, in render.Input) error {
					slog.Info("render skipped", "renderer", in.Ref, "changes", len(in.Entries))
					return nil
				},
			}
			if err := d.renderers.Register(ren); err != nil {
				return err
			}
		}
		slog.Info("renderers disabled, commits will not touch the system",
			"refs", d.renderers.Refs())
		return nil
	}

	frrMgr := frr.NewManager()
	for _, ren := range []render.Renderer{
		sysconf.New(),
		netifc.New(),
		frr.NewStatic(frrMgr),
		frr.NewBGP(frrMgr),
	} {
		if err := d.renderers.Register(ren); err != nil {
			return err
		}
	}
	return nil
}

// reloadSchemas re-reads the schema directory and swaps the new trees
// into the store, the commit engine, the API, and the console. A
// directory that no longer parses leaves the previous schemas in place.
func (d *Daemon) reloadSchemas() {
	set, err := schema.LoadDir(d.boot.SchemaDir)
	if err != nil {
		slog.Warn("schema reload failed", "dir", d.boot.SchemaDir, "err", err)
		return
	}
	if _, err := set.Config.RendererRoots(); err != nil {
		slog.Warn("schema reload rejected", "dir", d.boot.SchemaDir, "err", err)
		return
	}

	d.store.SetSchema(set.Config, d.registry)
	if err := d.engine.ReloadSchema(); err != nil {
		slog.Warn("commit engine schema reload failed", "err", err)
		return
	}
	if d.apiSrv != nil {
		d.apiSrv.SetSchemas(set, d.registry)
	}
	if d.console != nil {
		d.console.ReloadSchemas(set, d.registry)
	}
	for _, ref := range missingRenderers(d.renderers, set.Config) {
		slog.Warn("schema names a renderer with no implementation", "renderer", ref)
	}

	d.events.Add(logging.EventRecord{
		Type:    logging.EventSchemaReload,
		User:    "system",
		Summary: "schemas reloaded from " + d.boot.SchemaDir,
	})
	slog.Info("schemas reloaded", "dir", d.boot.SchemaDir)
}

// missingRenderers lists schema-declared renderer references that have
// no registered implementation, sorted.
func missingRenderers(reg *render.Registry, sch *schema.Tree) []string {
	roots, err := sch.RendererRoots()
	if err != nil {
		return nil
	}
	var missing []string
	for ref := range roots {
		if _, ok := reg.Get(ref); !ok {
			missing = append(missing, ref)
		}
	}
	sort.Strings(missing)
	return missing
}

// consoleHistoryPath puts readline history in the operator's home
// directory, or nowhere when there is none.
func consoleHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".netcli_history")
}
