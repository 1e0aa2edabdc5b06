// Package diff compares two configuration trees and reports the difference
// as fully expanded leaf-level entries: adding a subtree yields one entry
// per leaf underneath it, never a collapsed subtree entry. Entries follow
// the schema's declaration order, so changes group by subsystem without a
// separate sort.
package diff

import (
	"fmt"
	"strings"

	"github.com/psaab/netcli/pkg/config"
	"github.com/psaab/netcli/pkg/schema"
)

// Kind classifies one entry.
type Kind int

const (
	Added Kind = iota
	Removed
	Modified
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind for JSON payloads.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Entry is one leaf-level difference between running and candidate.
//
// For added and removed leaves, Path holds the full flat token path
// including captured values. For a modified scalar, Path stops at the
// keyword and OldValue/NewValue carry the two values. Context is the flat
// path of the enclosing node, and Renderer names the subsystem renderer
// responsible for the path, inherited from the nearest schema ancestor
// that declares one.
type Entry struct {
	Path     []string `json:"path"`
	Kind     Kind     `json:"kind"`
	OldValue string   `json:"old_value,omitempty"`
	NewValue string   `json:"new_value,omitempty"`
	Context  []string `json:"context,omitempty"`
	Renderer string   `json:"renderer,omitempty"`
}

// Compare walks running and candidate guided by the schema and returns the
// leaf-level differences in depth-first schema order. Keywords the schema
// does not know are compared structurally, matching instances by their full
// key sequence.
func Compare(sch *schema.Tree, running, candidate *config.Tree) []Entry {
	d := &differ{}
	var old, new []*config.Node
	if running != nil {
		old = running.Children
	}
	if candidate != nil {
		new = candidate.Children
	}
	d.level(sch.Root, old, new, nil, "")
	return d.entries
}

type differ struct {
	entries []Entry
}

// level compares the two child lists of one tree position. eff is the
// schema node governing this level, nil when the walk has left the schema.
func (d *differ) level(eff *schema.Node, old, new []*config.Node, path []string, ren string) {
	known := map[string]bool{}
	if eff != nil {
		for _, cs := range eff.Children {
			known[cs.Name] = true
			r := ren
			if cs.Renderer != "" {
				r = cs.Renderer
			}
			d.keyword(cs, byName(old, cs.Name), byName(new, cs.Name), path, r)
		}
	}
	for _, name := range unknownNames(old, new, known) {
		d.keyword(nil, byName(old, name), byName(new, name), path, ren)
	}
}

// keyword compares the instances of one keyword at one level. Instances of
// a multi tag, and of keywords outside the schema, match on their full key
// sequence; a single-valued keyword pairs positionally so a changed value
// reports as modified.
func (d *differ) keyword(cs *schema.Node, old, new []*config.Node, path []string, ren string) {
	multi := cs == nil || (cs.Tag != nil && cs.Tag.Multi)
	if !multi {
		n := len(old)
		if len(new) > n {
			n = len(new)
		}
		for i := 0; i < n; i++ {
			d.pair(cs, at(old, i), at(new, i), path, ren)
		}
		return
	}
	for _, o := range old {
		d.pair(cs, o, exact(new, o.Keys), path, ren)
	}
	for _, n := range new {
		if exact(old, n.Keys) == nil {
			d.pair(cs, nil, n, path, ren)
		}
	}
}

func (d *differ) pair(cs *schema.Node, o, n *config.Node, path []string, ren string) {
	switch {
	case o == nil && n == nil:
		return
	case o == nil:
		d.expand(Added, cs, n, path, ren)
	case n == nil:
		d.expand(Removed, cs, o, path, ren)
	case keysEqual(o.Keys, n.Keys):
		d.level(tagSchema(cs, o.Keys), o.Children, n.Children, appendPath(path, o.Keys), ren)
	default:
		// Single-valued keyword with a new value.
		if o.Value() != n.Value() {
			d.entries = append(d.entries, Entry{
				Path:     appendPath(path, o.Keys[:1]),
				Kind:     Modified,
				OldValue: o.Value(),
				NewValue: n.Value(),
				Context:  appendPath(path, nil),
				Renderer: ren,
			})
		}
		d.level(tagSchema(cs, n.Keys), o.Children, n.Children, appendPath(path, n.Keys), ren)
	}
}

// expand emits one entry per leaf of a subtree present on only one side.
func (d *differ) expand(kind Kind, cs *schema.Node, n *config.Node, path []string, ren string) {
	if cs != nil && cs.Renderer != "" {
		ren = cs.Renderer
	}
	if n.Leaf() {
		e := Entry{
			Path:     appendPath(path, n.Keys),
			Kind:     kind,
			Context:  appendPath(path, nil),
			Renderer: ren,
		}
		if kind == Added {
			e.NewValue = n.Value()
		} else {
			e.OldValue = n.Value()
		}
		d.entries = append(d.entries, e)
		return
	}
	eff := tagSchema(cs, n.Keys)
	base := appendPath(path, n.Keys)
	known := map[string]bool{}
	if eff != nil {
		for _, child := range eff.Children {
			known[child.Name] = true
			for _, c := range n.FindChildren(child.Name) {
				d.expand(kind, child, c, base, ren)
			}
		}
	}
	for _, c := range n.Children {
		if !known[c.Name()] {
			d.expand(kind, nil, c, base, ren)
		}
	}
}

// tagSchema advances a keyword's schema node through its tag chain, one
// step per captured value, yielding the node that governs the children.
func tagSchema(cs *schema.Node, keys []string) *schema.Node {
	if cs == nil {
		return nil
	}
	n := cs
	for range keys[1:] {
		if n.Tag == nil {
			return n
		}
		n = n.Tag
	}
	return n
}

func byName(nodes []*config.Node, name string) []*config.Node {
	var out []*config.Node
	for _, n := range nodes {
		if n.Name() == name {
			out = append(out, n)
		}
	}
	return out
}

func unknownNames(old, new []*config.Node, known map[string]bool) []string {
	var names []string
	seen := map[string]bool{}
	for _, n := range old {
		if !known[n.Name()] && !seen[n.Name()] {
			seen[n.Name()] = true
			names = append(names, n.Name())
		}
	}
	for _, n := range new {
		if !known[n.Name()] && !seen[n.Name()] {
			seen[n.Name()] = true
			names = append(names, n.Name())
		}
	}
	return names
}

func exact(nodes []*config.Node, keys []string) *config.Node {
	for _, n := range nodes {
		if keysEqual(n.Keys, keys) {
			return n
		}
	}
	return nil
}

func at(nodes []*config.Node, i int) *config.Node {
	if i < len(nodes) {
		return nodes[i]
	}
	return nil
}

func keysEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendPath(path, keys []string) []string {
	out := make([]string, len(path)+len(keys))
	copy(out, path)
	copy(out[len(path):], keys)
	return out
}

// SetLines renders entries as +/- set commands, the compare output the CLI
// prints. A modified scalar renders as a remove/add pair.
func SetLines(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case Added:
			fmt.Fprintf(&b, "+ set %s\n", config.JoinQuoted(e.Path))
		case Removed:
			fmt.Fprintf(&b, "- set %s\n", config.JoinQuoted(e.Path))
		case Modified:
			fmt.Fprintf(&b, "- set %s %s\n", config.JoinQuoted(e.Path), config.Quote(e.OldValue))
			fmt.Fprintf(&b, "+ set %s %s\n", config.JoinQuoted(e.Path), config.Quote(e.NewValue))
		}
	}
	return b.String()
}

// Hierarchical renders entries beneath [edit <context>] headers, one
// header per run of entries sharing an enclosing node.
func Hierarchical(entries []Entry) string {
	var b strings.Builder
	last := "\x00"
	for _, e := range entries {
		ctx := config.JoinQuoted(e.Context)
		if ctx != last {
			if ctx == "" {
				b.WriteString("[edit]\n")
			} else {
				fmt.Fprintf(&b, "[edit %s]\n", ctx)
			}
			last = ctx
		}
		stmt := config.JoinQuoted(e.Path[len(e.Context):])
		switch e.Kind {
		case Added:
			fmt.Fprintf(&b, "+   %s;\n", stmt)
		case Removed:
			fmt.Fprintf(&b, "-   %s;\n", stmt)
		case Modified:
			fmt.Fprintf(&b, "-   %s %s;\n", stmt, config.Quote(e.OldValue))
			fmt.Fprintf(&b, "+   %s %s;\n", stmt, config.Quote(e.NewValue))
		}
	}
	return b.String()
}

// ByRenderer buckets entries by renderer ref, preserving entry order and
// first-seen ref order. Entries on paths outside every subsystem land in
// the empty bucket.
func ByRenderer(entries []Entry) ([]string, map[string][]Entry) {
	var refs []string
	buckets := make(map[string][]Entry)
	for _, e := range entries {
		if _, ok := buckets[e.Renderer]; !ok {
			refs = append(refs, e.Renderer)
		}
		buckets[e.Renderer] = append(buckets[e.Renderer], e)
	}
	return refs, buckets
}
