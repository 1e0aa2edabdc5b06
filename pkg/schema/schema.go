// Package schema defines the command tree that drives the CLI: operational
// commands, configuration-mode commands, and the configuration schema itself.
//
// A tree is a hierarchy of nodes. Fixed keywords are literal children, kept
// in declaration order because completion listings and diff grouping follow
// the order the schema author wrote. A node may additionally declare one tag
// child (a "<name>" key in the document) that consumes a single user-supplied
// token, optionally validated and suggested by ID.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Kind classifies a node.
type Kind int

const (
	// KindNode is a fixed keyword with children; never executable.
	KindNode Kind = iota
	// KindLeaf is a terminal: an executable command or a presence flag.
	KindLeaf
	// KindTag consumes one user-supplied token (a value).
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindLeaf:
		return "leafNode"
	case KindTag:
		return "tagNode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func kindFromString(s string) (Kind, error) {
	switch s {
	case "node":
		return KindNode, nil
	case "leafNode":
		return KindLeaf, nil
	case "tagNode":
		return KindTag, nil
	default:
		return KindNode, fmt.Errorf("unknown node type %q", s)
	}
}

// Node is one position in the command tree.
type Node struct {
	Name        string
	Kind        Kind
	Description string

	// Command is the execution template for operational trees. Tag
	// placeholders ("<host>") are substituted with captured values.
	Command string

	// Validator names the registered validator for a tag node. Empty
	// means any token is accepted.
	Validator string

	// EnumValues lists the allowed tokens for the "enum" validator.
	EnumValues []string

	// Suggestor names the registered completion source for a tag node.
	Suggestor     string
	SuggestorArgs []string

	// Multi marks a tag whose values form independent sibling subtrees
	// instead of replacing each other.
	Multi bool

	// Renderer names the subsystem renderer responsible for this subtree
	// at commit time. Set on subsystem roots of the configuration schema.
	Renderer string

	// Children holds literal children in declaration order.
	Children []*Node
	// Tag is the single wildcard child, nil if none.
	Tag *Node

	byName map[string]*Node
}

// Child returns the literal child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	if n.byName == nil {
		return nil
	}
	return n.byName[name]
}

// Executable reports whether a command line may stop at this node:
// a leaf, or a tag that carries a command template.
func (n *Node) Executable() bool {
	return n.Kind == KindLeaf || (n.Kind == KindTag && n.Command != "")
}

// Placeholder returns the display form of a tag node's name.
func (n *Node) Placeholder() string {
	return "<" + n.Name + ">"
}

func (n *Node) addChild(c *Node) error {
	if n.byName == nil {
		n.byName = make(map[string]*Node)
	}
	if _, dup := n.byName[c.Name]; dup {
		return fmt.Errorf("duplicate child %q", c.Name)
	}
	n.byName[c.Name] = c
	n.Children = append(n.Children, c)
	return nil
}

// Tree is a parsed schema document. The root is a synthetic node whose
// children are the document's top-level entries.
type Tree struct {
	Root *Node
}

// Parse reads a JSON schema document. Child order is preserved, which
// encoding/json maps would lose, so the object is walked with a Decoder.
func Parse(data []byte) (*Tree, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	root, err := buildJSON("", raw)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &Tree{Root: root}, nil
}

// ParseYAML reads a YAML schema document with the same structure as the
// JSON form. yaml.Node walks preserve mapping order.
func ParseYAML(data []byte) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(doc.Content) == 0 {
		return &Tree{Root: &Node{Kind: KindNode}}, nil
	}
	root, err := buildYAML("", doc.Content[0])
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &Tree{Root: root}, nil
}

// ParseFile loads a schema document, dispatching on the file extension.
func ParseFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// jsonPair is one key/value of an object with the value left raw, so the
// value's kind (object = child, scalar = attribute) decides its meaning.
type jsonPair struct {
	key string
	raw json.RawMessage
}

func decodePairs(raw json.RawMessage) ([]jsonPair, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var pairs []jsonPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		pairs = append(pairs, jsonPair{key: key, raw: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}

func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == '{'
		}
	}
	return false
}

func buildJSON(name string, raw json.RawMessage) (*Node, error) {
	n := &Node{Name: name, Kind: KindNode}
	pairs, err := decodePairs(raw)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", name, err)
	}
	for _, p := range pairs {
		if isJSONObject(p.raw) {
			child, err := buildJSON(childName(p.key), p.raw)
			if err != nil {
				return nil, err
			}
			if err := attach(n, p.key, child); err != nil {
				return nil, fmt.Errorf("node %q: %w", name, err)
			}
			continue
		}
		var v any
		if err := json.Unmarshal(p.raw, &v); err != nil {
			return nil, fmt.Errorf("node %q: key %q: %w", name, p.key, err)
		}
		if err := applyAttr(n, p.key, v); err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
	}
	if err := checkNode(n); err != nil {
		return nil, fmt.Errorf("node %q: %w", name, err)
	}
	return n, nil
}

func buildYAML(name string, m *yaml.Node) (*Node, error) {
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("node %q: expected mapping", name)
	}
	n := &Node{Name: name, Kind: KindNode}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i].Value
		val := m.Content[i+1]
		if val.Kind == yaml.MappingNode {
			child, err := buildYAML(childName(key), val)
			if err != nil {
				return nil, err
			}
			if err := attach(n, key, child); err != nil {
				return nil, fmt.Errorf("node %q: %w", name, err)
			}
			continue
		}
		var v any
		if err := val.Decode(&v); err != nil {
			return nil, fmt.Errorf("node %q: key %q: %w", name, key, err)
		}
		if err := applyAttr(n, key, v); err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
	}
	if err := checkNode(n); err != nil {
		return nil, fmt.Errorf("node %q: %w", name, err)
	}
	return n, nil
}

// childName strips the angle brackets from a tag key.
func childName(key string) string {
	if isTagKey(key) {
		return key[1 : len(key)-1]
	}
	return key
}

func isTagKey(key string) bool {
	return len(key) > 2 && key[0] == '<' && key[len(key)-1] == '>'
}

func attach(n *Node, key string, child *Node) error {
	if isTagKey(key) {
		if child.Kind != KindTag {
			return fmt.Errorf("child %q: placeholder key requires type tagNode", key)
		}
		if n.Tag != nil {
			return fmt.Errorf("child %q: node already has tag child %q", key, n.Tag.Placeholder())
		}
		n.Tag = child
		return nil
	}
	if child.Kind == KindTag {
		return fmt.Errorf("child %q: tagNode requires a <placeholder> key", key)
	}
	return n.addChild(child)
}

func applyAttr(n *Node, key string, v any) error {
	switch key {
	case "type":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("type: expected string")
		}
		k, err := kindFromString(s)
		if err != nil {
			return err
		}
		n.Kind = k
	case "description":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("description: expected string")
		}
		n.Description = s
	case "command":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("command: expected string")
		}
		n.Command = s
	case "validator":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("validator: expected string")
		}
		n.Validator = s
	case "enum-values":
		vals, err := stringList(v)
		if err != nil {
			return fmt.Errorf("enum-values: %w", err)
		}
		n.EnumValues = vals
	case "suggestor":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("suggestor: expected string")
		}
		n.Suggestor = s
	case "suggestor_args":
		vals, err := stringList(v)
		if err != nil {
			return fmt.Errorf("suggestor_args: %w", err)
		}
		n.SuggestorArgs = vals
	case "multi":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("multi: expected bool")
		}
		n.Multi = b
	case "renderer":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("renderer: expected string")
		}
		n.Renderer = s
	default:
		return fmt.Errorf("unknown attribute %q", key)
	}
	return nil
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list of strings")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("expected list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func checkNode(n *Node) error {
	if n.Multi && n.Kind != KindTag {
		return fmt.Errorf("multi is only valid on tagNode")
	}
	if n.Kind != KindTag && (n.Validator != "" || n.Suggestor != "") {
		return fmt.Errorf("validator/suggestor are only valid on tagNode")
	}
	return nil
}

// Walk visits every node depth-first, literal children in declaration order,
// then the tag child. The path holds literal names and tag placeholders.
func (t *Tree) Walk(fn func(path []string, n *Node) error) error {
	return walkNode(nil, t.Root, fn)
}

func walkNode(path []string, n *Node, fn func(path []string, n *Node) error) error {
	visit := func(el string, c *Node) error {
		p := make([]string, len(path)+1)
		copy(p, path)
		p[len(path)] = el
		if err := fn(p, c); err != nil {
			return err
		}
		return walkNode(p, c, fn)
	}
	for _, c := range n.Children {
		if err := visit(c.Name, c); err != nil {
			return err
		}
	}
	if n.Tag != nil {
		if err := visit(n.Tag.Placeholder(), n.Tag); err != nil {
			return err
		}
	}
	return nil
}

// RefSet collects the validator, suggestor, and renderer IDs a tree
// references, for cross-checking against the registries at load time.
type RefSet struct {
	Validators []string
	Suggestors []string
	Renderers  []string
}

// Refs returns the deduplicated IDs referenced anywhere in the tree.
func (t *Tree) Refs() RefSet {
	var rs RefSet
	seenV := map[string]bool{}
	seenS := map[string]bool{}
	seenR := map[string]bool{}
	_ = t.Walk(func(_ []string, n *Node) error {
		if n.Validator != "" && !seenV[n.Validator] {
			seenV[n.Validator] = true
			rs.Validators = append(rs.Validators, n.Validator)
		}
		if n.Suggestor != "" && !seenS[n.Suggestor] {
			seenS[n.Suggestor] = true
			rs.Suggestors = append(rs.Suggestors, n.Suggestor)
		}
		if n.Renderer != "" && !seenR[n.Renderer] {
			seenR[n.Renderer] = true
			rs.Renderers = append(rs.Renderers, n.Renderer)
		}
		return nil
	})
	return rs
}

// RendererRoots maps each renderer reference to the schema path of the
// subtree declaring it. A reference may appear once, on a literal path:
// commit hands each renderer exactly one subtree.
func (t *Tree) RendererRoots() (map[string][]string, error) {
	roots := make(map[string][]string)
	err := t.Walk(func(path []string, n *Node) error {
		if n.Renderer == "" {
			return nil
		}
		for _, el := range path {
			if strings.HasPrefix(el, "<") {
				return fmt.Errorf("renderer %q declared under tag path %q",
					n.Renderer, strings.Join(path, " "))
			}
		}
		if prev, dup := roots[n.Renderer]; dup {
			return fmt.Errorf("renderer %q declared at both %q and %q",
				n.Renderer, strings.Join(prev, " "), strings.Join(path, " "))
		}
		roots[n.Renderer] = append([]string(nil), path...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roots, nil
}

// GraftUnder shares sub's top-level entries as children of the node at path.
// Used to mount the configuration schema under "set" and "delete" in the
// configuration-mode command tree.
func (t *Tree) GraftUnder(path []string, sub *Tree) error {
	n := t.Root
	for _, el := range path {
		c := n.Child(el)
		if c == nil {
			return fmt.Errorf("graft: no node %q", strings.Join(path, " "))
		}
		n = c
	}
	for _, c := range sub.Root.Children {
		if err := n.addChild(c); err != nil {
			return fmt.Errorf("graft under %q: %w", strings.Join(path, " "), err)
		}
	}
	if sub.Root.Tag != nil {
		if n.Tag != nil {
			return fmt.Errorf("graft under %q: tag child already present", strings.Join(path, " "))
		}
		n.Tag = sub.Root.Tag
	}
	return nil
}
