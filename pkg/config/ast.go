package config

import "strings"

// Node is one statement in the configuration tree. Keys holds the keyword
// and any captured values that identify the node at its level:
//
//	"ip-forwarding" (presence flag)    -> ["ip-forwarding"]
//	"host-name rtr1" (scalar)          -> ["host-name", "rtr1"]
//	"route 10.0.0.0/24" (tag instance) -> ["route", "10.0.0.0/24"]
//
// A node with children renders as a braced block, a childless node as a
// single semicolon-terminated line.
type Node struct {
	Keys     []string
	Children []*Node
}

// Leaf reports whether the node renders as a terminated line.
func (n *Node) Leaf() bool { return len(n.Children) == 0 }

// Name returns the node's keyword.
func (n *Node) Name() string {
	if len(n.Keys) == 0 {
		return ""
	}
	return n.Keys[0]
}

// Value returns the tokens captured after the keyword, joined by spaces.
func (n *Node) Value() string {
	if len(n.Keys) < 2 {
		return ""
	}
	return strings.Join(n.Keys[1:], " ")
}

// KeyPath returns the full key sequence as a single string.
func (n *Node) KeyPath() string {
	return strings.Join(n.Keys, " ")
}

// FindChild returns the first child whose keyword matches name.
func (n *Node) FindChild(name string) *Node {
	return findByName(n.Children, name)
}

// FindChildren returns all children whose keyword matches name.
func (n *Node) FindChildren(name string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Name() == name {
			result = append(result, child)
		}
	}
	return result
}

// Tree is a configuration: an ordered forest of top-level nodes.
type Tree struct {
	Children []*Node
}

// Empty reports whether the tree has no statements.
func (t *Tree) Empty() bool { return len(t.Children) == 0 }

// FindChild returns the first top-level child whose keyword matches name.
func (t *Tree) FindChild(name string) *Node {
	return findByName(t.Children, name)
}

func findByName(nodes []*Node, name string) *Node {
	for _, n := range nodes {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

// Clone creates a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{Children: cloneNodes(t.Children)}
}

func cloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{
			Keys:     append([]string(nil), n.Keys...),
			Children: cloneNodes(n.Children),
		}
	}
	return result
}

// keysEqual returns true if two key sequences are identical.
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

// keysHavePrefix returns true if keys starts with all elements of prefix.
// A bare keyword prefix matches every instance of a tagged node.
func keysHavePrefix(keys, prefix []string) bool {
	if len(prefix) > len(keys) {
		return false
	}
	for i, p := range prefix {
		if keys[i] != p {
			return false
		}
	}
	return true
}
