package config

import (
	"fmt"

	"github.com/psaab/netcli/pkg/schema"
)

// Segment is one tree level of a configuration path: a keyword and the tag
// values captured after it. Node is the schema node of the last consumed
// token, which carries the multi flag for tagged instances.
type Segment struct {
	Keys []string
	Node *schema.Node
}

// SplitPath groups matched steps into tree segments. A literal keyword
// starts a segment; a captured tag value extends the current one, so
// "interfaces ethernet eth0 address 10.0.0.1/24" becomes three segments:
// [interfaces], [ethernet eth0], [address 10.0.0.1/24].
func SplitPath(steps []schema.Step) []Segment {
	var segs []Segment
	for _, st := range steps {
		if st.IsTag && len(segs) > 0 {
			last := &segs[len(segs)-1]
			last.Keys = append(last.Keys, st.Token)
			last.Node = st.Node
			continue
		}
		segs = append(segs, Segment{Keys: []string{st.Token}, Node: st.Node})
	}
	return segs
}

// multi reports whether the segment names one instance of a multi-valued
// tag. Multi instances coexist as siblings; all other segments address at
// most one node per level.
func (s Segment) multi() bool {
	return s.Node != nil && s.Node.Kind == schema.KindTag && s.Node.Multi
}

// Set merges the path into the tree, creating nodes as needed. Instances
// of multi tags become siblings; setting a single-valued tag replaces the
// previous value in place, keeping any children. Setting a path that is
// already present is a no-op.
func (t *Tree) Set(path []Segment) error {
	if len(path) == 0 {
		return fmt.Errorf("set: empty path")
	}
	children := &t.Children
	for _, seg := range path {
		n := matchSegment(*children, seg)
		if n == nil {
			n = &Node{Keys: append([]string(nil), seg.Keys...)}
			*children = append(*children, n)
		} else if !keysEqual(n.Keys, seg.Keys) {
			n.Keys = append([]string(nil), seg.Keys...)
		}
		children = &n.Children
	}
	return nil
}

// matchSegment finds the child a segment addresses. A single-valued tag
// matches on the keyword alone, so a new value replaces the old; multi
// instances and bare keywords match on the full key sequence.
func matchSegment(nodes []*Node, seg Segment) *Node {
	byName := len(seg.Keys) > 1 && !seg.multi()
	for _, n := range nodes {
		if byName {
			if n.Name() == seg.Keys[0] {
				return n
			}
			continue
		}
		if keysEqual(n.Keys, seg.Keys) {
			return n
		}
	}
	return nil
}

// Delete removes the subtree the path names. The final segment may be a
// bare keyword, which removes every instance under it. Deleting a path
// that is not present is a no-op; parents of the removed node survive.
func (t *Tree) Delete(path []Segment) error {
	if len(path) == 0 {
		return fmt.Errorf("delete: empty path")
	}
	children := &t.Children
	for _, seg := range path[:len(path)-1] {
		n := findExact(*children, seg.Keys)
		if n == nil {
			return nil
		}
		children = &n.Children
	}
	last := path[len(path)-1]
	kept := (*children)[:0]
	for _, n := range *children {
		if !keysHavePrefix(n.Keys, last.Keys) {
			kept = append(kept, n)
		}
	}
	*children = kept
	return nil
}

// Find returns the nodes the path addresses: exact matches down to the
// last segment, which may be a bare keyword matching every instance.
func (t *Tree) Find(path []Segment) []*Node {
	if len(path) == 0 {
		return nil
	}
	children := t.Children
	for _, seg := range path[:len(path)-1] {
		n := findExact(children, seg.Keys)
		if n == nil {
			return nil
		}
		children = n.Children
	}
	last := path[len(path)-1]
	var out []*Node
	for _, n := range children {
		if keysHavePrefix(n.Keys, last.Keys) {
			out = append(out, n)
		}
	}
	return out
}

// FindPath is Find for a literal keyword path with no tag values, such as
// a subsystem root. It returns the single addressed node or nil.
func (t *Tree) FindPath(names ...string) *Node {
	children := t.Children
	var n *Node
	for _, name := range names {
		n = findExact(children, []string{name})
		if n == nil {
			return nil
		}
		children = n.Children
	}
	return n
}

func findExact(nodes []*Node, keys []string) *Node {
	for _, n := range nodes {
		if keysEqual(n.Keys, keys) {
			return n
		}
	}
	return nil
}
