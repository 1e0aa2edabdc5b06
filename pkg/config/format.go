package config

import (
	"fmt"
	"strings"
)

// Format renders the tree in the hierarchical display form: blocks indent
// by four spaces, childless nodes terminate with a semicolon. The output
// parses back into a structurally identical tree.
func (t *Tree) Format() string {
	var b strings.Builder
	writeNodes(&b, t.Children, 0)
	return b.String()
}

// FormatNodes renders a slice of nodes at top level, for filtered views.
func FormatNodes(nodes []*Node) string {
	var b strings.Builder
	writeNodes(&b, nodes, 0)
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []*Node, indent int) {
	prefix := strings.Repeat("    ", indent)
	for _, n := range nodes {
		if n.Leaf() {
			fmt.Fprintf(b, "%s%s;\n", prefix, JoinQuoted(n.Keys))
			continue
		}
		fmt.Fprintf(b, "%s%s {\n", prefix, JoinQuoted(n.Keys))
		writeNodes(b, n.Children, indent+1)
		fmt.Fprintf(b, "%s}\n", prefix)
	}
}

// FormatSet renders the tree as flat set commands, one per leaf.
func (t *Tree) FormatSet() string {
	var b strings.Builder
	writeSetLines(&b, t.Children, nil)
	return b.String()
}

func writeSetLines(b *strings.Builder, nodes []*Node, prefix []string) {
	for _, n := range nodes {
		path := append(append([]string(nil), prefix...), n.Keys...)
		if n.Leaf() {
			fmt.Fprintf(b, "set %s\n", JoinQuoted(path))
		} else {
			writeSetLines(b, n.Children, path)
		}
	}
}

// JoinQuoted renders tokens space-separated, quoting where needed.
func JoinQuoted(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = Quote(k)
	}
	return strings.Join(parts, " ")
}

// Quote wraps a value in double quotes when it cannot stand as a bare
// identifier, escaping quotes and backslashes so the lexer reads it back.
func Quote(k string) string {
	if k != "" && isBareKey(k) {
		return k
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(k); i++ {
		if k[i] == '"' || k[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(k[i])
	}
	b.WriteByte('"')
	return b.String()
}

func isBareKey(k string) bool {
	for i := 0; i < len(k); i++ {
		if !isIdentChar(k[i]) {
			return false
		}
	}
	return true
}
