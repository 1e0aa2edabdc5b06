package schema

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:embed op.json commands.json config.json
var defaultFS embed.FS

var (
	defaultsOnce sync.Once
	defaultOp    *Tree
	defaultCmds  *Tree
	defaultConf  *Tree
	defaultsErr  error
)

func loadDefaults() {
	load := func(name string) *Tree {
		if defaultsErr != nil {
			return nil
		}
		data, err := defaultFS.ReadFile(name)
		if err != nil {
			defaultsErr = fmt.Errorf("embedded schema %s: %w", name, err)
			return nil
		}
		t, err := Parse(data)
		if err != nil {
			defaultsErr = fmt.Errorf("embedded schema %s: %w", name, err)
			return nil
		}
		return t
	}
	defaultOp = load("op.json")
	defaultConf = load("config.json")
	defaultCmds = load("commands.json")
	if defaultsErr != nil {
		return
	}
	// The config schema hangs under set and delete so path completion and
	// help flow through the same matcher as everything else. run carries
	// the operational tree for the same reason.
	for _, cmd := range []string{"set", "delete", "show"} {
		if err := defaultCmds.GraftUnder([]string{cmd}, defaultConf); err != nil {
			defaultsErr = err
			return
		}
	}
	if err := defaultCmds.GraftUnder([]string{"run"}, defaultOp); err != nil {
		defaultsErr = err
	}
}

// DefaultOperational returns the embedded operational command tree.
func DefaultOperational() (*Tree, error) {
	defaultsOnce.Do(loadDefaults)
	return defaultOp, defaultsErr
}

// DefaultCommands returns the embedded configuration-mode command tree with
// the configuration schema grafted under set, delete, and show.
func DefaultCommands() (*Tree, error) {
	defaultsOnce.Do(loadDefaults)
	return defaultCmds, defaultsErr
}

// DefaultConfig returns the embedded configuration schema.
func DefaultConfig() (*Tree, error) {
	defaultsOnce.Do(loadDefaults)
	return defaultConf, defaultsErr
}

// Set holds the three documents the CLI runs on.
type Set struct {
	Operational *Tree
	Commands    *Tree
	Config      *Tree
}

// DefaultSet returns the embedded schema documents.
func DefaultSet() (*Set, error) {
	op, err := DefaultOperational()
	if err != nil {
		return nil, err
	}
	cmds, err := DefaultCommands()
	if err != nil {
		return nil, err
	}
	conf, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	return &Set{Operational: op, Commands: cmds, Config: conf}, nil
}

// LoadDir reads op/commands/config schema documents from a directory,
// accepting .json, .yaml, or .yml for each, and grafts the config schema
// into the command tree the same way the embedded set does. Documents
// missing from the directory fall back to the embedded defaults.
func LoadDir(dir string) (*Set, error) {
	find := func(base string) (string, bool) {
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			p := filepath.Join(dir, base+ext)
			if _, err := os.Stat(p); err == nil {
				return p, true
			}
		}
		return "", false
	}

	op, err := loadOrDefault(find, "op", DefaultOperational)
	if err != nil {
		return nil, err
	}
	conf, err := loadOrDefault(find, "config", DefaultConfig)
	if err != nil {
		return nil, err
	}

	var cmds *Tree
	if path, ok := find("commands"); ok {
		cmds, err = ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", path, err)
		}
	} else {
		data, err := defaultFS.ReadFile("commands.json")
		if err != nil {
			return nil, err
		}
		cmds, err = Parse(data)
		if err != nil {
			return nil, err
		}
	}
	for _, cmd := range []string{"set", "delete", "show"} {
		if err := cmds.GraftUnder([]string{cmd}, conf); err != nil {
			return nil, err
		}
	}
	if err := cmds.GraftUnder([]string{"run"}, op); err != nil {
		return nil, err
	}
	return &Set{Operational: op, Commands: cmds, Config: conf}, nil
}

func loadOrDefault(find func(string) (string, bool), base string, fallback func() (*Tree, error)) (*Tree, error) {
	if path, ok := find(base); ok {
		t, err := ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", path, err)
		}
		return t, nil
	}
	return fallback()
}
