package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/netcli/pkg/commit"
	"github.com/psaab/netcli/pkg/configstore"
	"github.com/psaab/netcli/pkg/logging"
	"github.com/psaab/netcli/pkg/render"
	"github.com/psaab/netcli/pkg/schema"
	"github.com/psaab/netcli/pkg/valid"
)

const testSchemaV1 = `{
  "system": {
    "type": "node",
    "description": "System parameters",
    "renderer": "system",
    "host-name": {
      "type": "node",
      "description": "Host name",
      "<hostname>": {"type": "tagNode", "description": "System host name"}
    }
  }
}`

const testSchemaV2 = `{
  "system": {
    "type": "node",
    "description": "System parameters",
    "renderer": "system",
    "host-name": {
      "type": "node",
      "description": "Host name",
      "<hostname>": {"type": "tagNode", "description": "System host name"}
    },
    "domain-name": {
      "type": "node",
      "description": "Domain name",
      "<domain>": {"type": "tagNode", "description": "DNS domain"}
    }
  }
}`

func writeSchema(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
}

func TestNewAppliesOverrides(t *testing.T) {
	path := writeBootstrap(t, `
config-dir = "/srv/a"
api-listen = "127.0.0.1:9999"
`)
	d, err := New(Options{
		BootstrapFile: path,
		ConfigDir:     "/srv/b",
		Hostname:      "edge9",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.boot.ConfigDir != "/srv/b" {
		t.Errorf("ConfigDir = %q, want flag override", d.boot.ConfigDir)
	}
	if d.boot.APIListen != "127.0.0.1:9999" {
		t.Errorf("APIListen = %q, want bootstrap value", d.boot.APIListen)
	}
	if d.boot.Hostname != "edge9" {
		t.Errorf("Hostname = %q", d.boot.Hostname)
	}
}

func TestRegisterRenderersStandIns(t *testing.T) {
	set, err := schema.DefaultSet()
	if err != nil {
		t.Fatalf("DefaultSet: %v", err)
	}
	d := &Daemon{
		opts:      Options{NoRenderers: true},
		boot:      &Bootstrap{},
		store:     configstore.New(set.Config, valid.Default(), ""),
		renderers: render.NewRegistry(),
	}
	if err := d.registerRenderers(); err != nil {
		t.Fatalf("registerRenderers: %v", err)
	}

	want := []string{"bgp", "interfaces", "static", "system"}
	if diff := cmp.Diff(want, d.renderers.Refs()); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}

	ren, ok := d.renderers.Get("system")
	if !ok {
		t.Fatal("system stand-in not registered")
	}
	if err := ren.Render(context.Background(), render.Input{Ref: "system"}); err != nil {
		t.Errorf("stand-in render: %v", err)
	}

	if missing := missingRenderers(d.renderers, set.Config); len(missing) != 0 {
		t.Errorf("missingRenderers = %v", missing)
	}
}

func TestReloadSchemas(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, testSchemaV1)

	set, err := schema.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	registry := valid.Default()
	store := configstore.New(set.Config, registry, "")
	renderers := render.NewRegistry()
	err = renderers.Register(render.Func{
		Name: "system",
		Fn:   func(context.Context, render.Input) error { return nil },
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	engine, err := commit.New(commit.Config{
		Store:     store,
		Renderers: renderers,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("commit.New: %v", err)
	}
	events := logging.NewEventBuffer(8)

	d := &Daemon{
		boot:      &Bootstrap{SchemaDir: dir},
		store:     store,
		registry:  registry,
		renderers: renderers,
		engine:    engine,
		events:    events,
	}

	if err := store.EnterConfigure(); err != nil {
		t.Fatalf("EnterConfigure: %v", err)
	}
	if err := store.SetFromInput("system domain-name corp.example"); err == nil {
		t.Fatal("set of a path outside the schema should fail before reload")
	}

	writeSchema(t, dir, testSchemaV2)
	d.reloadSchemas()

	if err := store.SetFromInput("system domain-name corp.example"); err != nil {
		t.Fatalf("set after reload: %v", err)
	}

	latest := events.Latest(1)
	if len(latest) != 1 || latest[0].Type != logging.EventSchemaReload {
		t.Errorf("events = %+v, want one %s event", latest, logging.EventSchemaReload)
	}
}

func TestReloadSchemasKeepsOldOnParseError(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, testSchemaV1)

	set, err := schema.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	registry := valid.Default()
	store := configstore.New(set.Config, registry, "")
	d := &Daemon{
		boot:     &Bootstrap{SchemaDir: dir},
		store:    store,
		registry: registry,
		events:   logging.NewEventBuffer(8),
	}

	writeSchema(t, dir, `{"system": `)
	d.reloadSchemas()

	if err := store.EnterConfigure(); err != nil {
		t.Fatalf("EnterConfigure: %v", err)
	}
	if err := store.SetFromInput("system host-name edge1"); err != nil {
		t.Fatalf("old schema should survive a failed reload: %v", err)
	}
}

func TestSchemaDocument(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/etc/netcli/schema/config.json", true},
		{"/etc/netcli/schema/op.yaml", true},
		{"/etc/netcli/schema/commands.yml", true},
		{"/etc/netcli/schema/config.json.swp", false},
		{"/etc/netcli/schema/notes.txt", false},
		{"/etc/netcli/schema/extra.json", false},
	}
	for _, tt := range tests {
		if got := schemaDocument(tt.path); got != tt.want {
			t.Errorf("schemaDocument(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	boot := writeBootstrap(t, fmt.Sprintf(`
config-dir = %q
commit-db = %q
api-listen = "127.0.0.1:0"
`, filepath.Join(dir, "etc"), filepath.Join(dir, "commits.db")))

	d, err := New(Options{
		BootstrapFile: boot,
		NoRenderers:   true,
		NoConsole:     true,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	if _, err := os.Stat(filepath.Join(dir, "commits.db")); err != nil {
		t.Errorf("commit archive not created: %v", err)
	}
}
