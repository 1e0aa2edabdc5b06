package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const miniSchema = `{
  "show": {
    "type": "node",
    "description": "Show information",
    "version": {"type": "leafNode", "description": "Show version", "command": "uname -a"},
    "route": {"type": "leafNode", "description": "Show routes", "command": "ip route show"}
  },
  "shutdown": {"type": "leafNode", "description": "Shut the system down"},
  "ping": {
    "type": "node",
    "description": "Send echo requests",
    "<host>": {
      "type": "tagNode",
      "description": "destination host",
      "command": "ping -c 4 <host>",
      "count": {
        "type": "node",
        "description": "Request count",
        "<count>": {
          "type": "tagNode",
          "description": "number of requests",
          "validator": "num-1-65535",
          "command": "ping -c <count> <host>"
        }
      }
    }
  }
}`

func TestParsePreservesOrder(t *testing.T) {
	tree, err := Parse([]byte(miniSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var names []string
	for _, c := range tree.Root.Children {
		names = append(names, c.Name)
	}
	want := []string{"show", "shutdown", "ping"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("top-level order mismatch (-want +got):\n%s", diff)
	}

	show := tree.Root.Child("show")
	if show == nil {
		t.Fatal("missing show node")
	}
	names = names[:0]
	for _, c := range show.Children {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"version", "route"}, names); diff != "" {
		t.Errorf("show children order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTagChild(t *testing.T) {
	tree, err := Parse([]byte(miniSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ping := tree.Root.Child("ping")
	if ping.Tag == nil {
		t.Fatal("ping has no tag child")
	}
	if ping.Tag.Name != "host" {
		t.Errorf("tag name = %q, want %q", ping.Tag.Name, "host")
	}
	if ping.Tag.Kind != KindTag {
		t.Errorf("tag kind = %v, want tagNode", ping.Tag.Kind)
	}
	if ping.Tag.Command != "ping -c 4 <host>" {
		t.Errorf("tag command = %q", ping.Tag.Command)
	}
	if !ping.Tag.Executable() {
		t.Error("tag with command should be executable")
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"tag without placeholder key", `{"a": {"type": "tagNode"}}`},
		{"placeholder key without tagNode", `{"<a>": {"type": "node"}}`},
		{"two tag children", `{"n": {"type": "node", "<a>": {"type": "tagNode"}, "<b>": {"type": "tagNode"}}}`},
		{"multi on literal", `{"a": {"type": "node", "multi": true}}`},
		{"validator on literal", `{"a": {"type": "node", "validator": "ip-address"}}`},
		{"unknown type", `{"a": {"type": "mystery"}}`},
		{"unknown attribute", `{"a": {"type": "node", "colour": "red"}}`},
		{"duplicate child", `{"a": {"type": "node"}, "a": {"type": "node"}}`},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.in)); err == nil {
			t.Errorf("%s: expected parse error", tc.name)
		}
	}
}

func TestParseYAML(t *testing.T) {
	doc := `
show:
  type: node
  description: Show information
  version:
    type: leafNode
    description: Show version
    command: uname -a
ping:
  type: node
  "<host>":
    type: tagNode
    description: destination host
    command: ping <host>
`
	tree, err := ParseYAML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if tree.Root.Child("show") == nil || tree.Root.Child("ping") == nil {
		t.Fatal("missing top-level nodes")
	}
	if tree.Root.Child("ping").Tag == nil {
		t.Error("yaml tag child not parsed")
	}
}

func TestRefs(t *testing.T) {
	tree, err := Parse([]byte(miniSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	refs := tree.Refs()
	if diff := cmp.Diff([]string{"num-1-65535"}, refs.Validators); diff != "" {
		t.Errorf("validators (-want +got):\n%s", diff)
	}
	if len(refs.Suggestors) != 0 || len(refs.Renderers) != 0 {
		t.Errorf("unexpected refs: %+v", refs)
	}
}

func TestRendererRoots(t *testing.T) {
	tree, err := Parse([]byte(`{
		"system": {"type": "node", "description": "System", "renderer": "system"},
		"protocols": {
			"type": "node",
			"description": "Protocols",
			"static": {"type": "node", "description": "Static routes", "renderer": "static"}
		}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	roots, err := tree.RendererRoots()
	if err != nil {
		t.Fatalf("RendererRoots: %v", err)
	}
	want := map[string][]string{
		"system": {"system"},
		"static": {"protocols", "static"},
	}
	if diff := cmp.Diff(want, roots); diff != "" {
		t.Errorf("roots (-want +got):\n%s", diff)
	}

	dup, err := Parse([]byte(`{
		"a": {"type": "node", "description": "A", "renderer": "x"},
		"b": {"type": "node", "description": "B", "renderer": "x"}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := dup.RendererRoots(); err == nil {
		t.Error("duplicate renderer reference should fail")
	}
}

func TestGraftUnder(t *testing.T) {
	cmds, err := Parse([]byte(`{"set": {"type": "node", "description": "Set a value"}}`))
	if err != nil {
		t.Fatal(err)
	}
	conf, err := Parse([]byte(`{"system": {"type": "node", "description": "System"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cmds.GraftUnder([]string{"set"}, conf); err != nil {
		t.Fatalf("GraftUnder: %v", err)
	}
	if cmds.Root.Child("set").Child("system") == nil {
		t.Error("grafted child not reachable")
	}
}

func TestDefaultSet(t *testing.T) {
	set, err := DefaultSet()
	if err != nil {
		t.Fatalf("DefaultSet: %v", err)
	}
	if set.Operational.Root.Child("show") == nil {
		t.Error("operational tree missing show")
	}
	if set.Config.Root.Child("protocols") == nil {
		t.Error("config tree missing protocols")
	}
	// set/delete carry the config schema, run the operational tree.
	if set.Commands.Root.Child("set").Child("protocols") == nil {
		t.Error("commands tree: set is missing grafted config schema")
	}
	if set.Commands.Root.Child("delete").Child("interfaces") == nil {
		t.Error("commands tree: delete is missing grafted config schema")
	}
	if set.Commands.Root.Child("run").Child("ping") == nil {
		t.Error("commands tree: run is missing grafted operational tree")
	}

	// The documented example path must exist end to end.
	n := set.Config.Root.Child("protocols").Child("static").Child("route")
	if n == nil || n.Tag == nil {
		t.Fatal("config tree missing protocols static route <prefix>")
	}
	n = n.Tag.Child("next-hop")
	if n == nil || n.Tag == nil {
		t.Fatal("config tree missing next-hop <address>")
	}
	n = n.Tag.Child("distance")
	if n == nil || n.Tag == nil {
		t.Fatal("config tree missing distance <1-255>")
	}
	if n.Tag.Validator != "num-1-255" {
		t.Errorf("distance validator = %q, want num-1-255", n.Tag.Validator)
	}
}

func TestWalkPaths(t *testing.T) {
	tree, err := Parse([]byte(miniSchema))
	if err != nil {
		t.Fatal(err)
	}
	var seen []string
	_ = tree.Walk(func(path []string, n *Node) error {
		if n.Kind == KindTag {
			seen = append(seen, path[len(path)-1])
		}
		return nil
	})
	if diff := cmp.Diff([]string{"<host>", "<count>"}, seen); diff != "" {
		t.Errorf("walk tag paths (-want +got):\n%s", diff)
	}
}
