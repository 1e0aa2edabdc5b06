package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExportJSON renders the tree as nested objects, one level per key element
// and null at the leaves. Sibling instances of a tagged node merge under
// the shared keyword:
//
//	{"interfaces": {"ethernet": {"eth0": {"address": {"10.0.0.1/24": null}}}}}
//
// This is the shape the daemon persists alongside the display form.
func (t *Tree) ExportJSON() ([]byte, error) {
	root := &jsonNode{}
	collectJSONPaths(root, t.Children, nil)
	var raw bytes.Buffer
	if err := root.write(&raw); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// jsonNode is an ordered nesting of key elements, built by merging leaf
// paths. A childless jsonNode marshals as null.
type jsonNode struct {
	order    []string
	children map[string]*jsonNode
}

func (j *jsonNode) child(key string) *jsonNode {
	if j.children == nil {
		j.children = make(map[string]*jsonNode)
	}
	c, ok := j.children[key]
	if !ok {
		c = &jsonNode{}
		j.children[key] = c
		j.order = append(j.order, key)
	}
	return c
}

func (j *jsonNode) insert(path []string) {
	if len(path) == 0 {
		return
	}
	j.child(path[0]).insert(path[1:])
}

func (j *jsonNode) write(b *bytes.Buffer) error {
	if len(j.order) == 0 {
		b.WriteString("null")
		return nil
	}
	b.WriteByte('{')
	for i, key := range j.order {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return err
		}
		b.Write(kb)
		b.WriteByte(':')
		if err := j.children[key].write(b); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func collectJSONPaths(root *jsonNode, nodes []*Node, prefix []string) {
	for _, n := range nodes {
		path := append(append([]string(nil), prefix...), n.Keys...)
		if n.Leaf() {
			root.insert(path)
			continue
		}
		collectJSONPaths(root, n.Children, path)
	}
}

// JSONPaths parses the nested JSON form back into flat paths in document
// order. Replaying the paths through the schema rebuilds the tree with its
// original grouping.
func JSONPaths(data []byte) ([][]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	paths, err := readJSONValue(dec, nil)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func readJSONValue(dec *json.Decoder, prefix []string) ([][]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case nil:
		return [][]string{append([]string(nil), prefix...)}, nil
	case json.Delim:
		if v != '{' {
			return nil, fmt.Errorf("unexpected %v at %q", v, prefix)
		}
		var out [][]string
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("expected object key, got %v", keyTok)
			}
			path := make([]string, len(prefix)+1)
			copy(path, prefix)
			path[len(prefix)] = key
			sub, err := readJSONValue(dec, path)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		if out == nil && len(prefix) > 0 {
			// An empty object terminates a path like null does.
			out = [][]string{append([]string(nil), prefix...)}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected value %v at %q", tok, prefix)
	}
}
