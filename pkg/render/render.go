// Package render defines the contract between the commit engine and the
// subsystem renderers that translate configuration subtrees into system
// state.
package render

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/diff"
)

// Input carries one subsystem's view of a commit. Subtree is the full
// candidate subtree at the subsystem root, nil when the subsystem is
// absent from the candidate; a renderer receiving nil removes whatever
// it manages. Running is the same subtree in the configuration being
// replaced, and Entries are the changes attributed to this renderer.
type Input struct {
	Ref     string
	Path    []string
	Subtree *config.Node
	Running *config.Node
	Entries []diff.Entry
}

// Renderer applies one subsystem's configuration to the system. Render
// must honor ctx: commit enforces a per-renderer deadline and cancels
// the remaining renderers when one fails.
type Renderer interface {
	Ref() string
	Render(ctx context.Context, in Input) error
}

// Checker is implemented by renderers that can validate a subtree
// without touching the system. Commit runs every check before the
// first render, so a check failure leaves the system untouched.
type Checker interface {
	Check(in Input) error
}

// Func adapts a function to the Renderer interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, in Input) error
}

func (f Func) Ref() string { return f.Name }

func (f Func) Render(ctx context.Context, in Input) error {
	return f.Fn(ctx, in)
}

// Registry holds the renderers available to the commit engine, keyed by
// the renderer reference the schema declares.
type Registry struct {
	mu    sync.RWMutex
	byRef map[string]Renderer
}

func NewRegistry() *Registry {
	return &Registry{byRef: make(map[string]Renderer)}
}

// Register adds a renderer. Registering the same reference twice is a
// wiring bug and fails.
func (r *Registry) Register(ren Renderer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := ren.Ref()
	if ref == "" {
		return fmt.Errorf("renderer has empty reference")
	}
	if _, dup := r.byRef[ref]; dup {
		return fmt.Errorf("renderer %q already registered", ref)
	}
	r.byRef[ref] = ren
	return nil
}

// Get returns the renderer registered for ref.
func (r *Registry) Get(ref string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ren, ok := r.byRef[ref]
	return ren, ok
}

// Refs returns the registered references, sorted.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.byRef))
	for ref := range r.byRef {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
