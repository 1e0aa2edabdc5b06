package schema

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/psaab/netcli/pkg/errcode"
)

// stubLookup is a minimal registry for matcher tests.
type stubLookup struct {
	suggestions map[string][]string
}

func (s stubLookup) Validator(id string) (ValidateFunc, bool) {
	switch {
	case id == "enum":
		return func(token string, args []string) error {
			for _, a := range args {
				if a == token {
					return nil
				}
			}
			return fmt.Errorf("not allowed")
		}, true
	case strings.HasPrefix(id, "num-"):
		parts := strings.SplitN(strings.TrimPrefix(id, "num-"), "-", 2)
		lo, _ := strconv.Atoi(parts[0])
		hi, _ := strconv.Atoi(parts[1])
		return func(token string, _ []string) error {
			v, err := strconv.Atoi(token)
			if err != nil || v < lo || v > hi {
				return fmt.Errorf("out of range")
			}
			return nil
		}, true
	}
	return nil, false
}

func (s stubLookup) Suggestor(id string) (SuggestFunc, bool) {
	vals, ok := s.suggestions[id]
	if !ok {
		return nil, false
	}
	return func(prefix string, _ []string) []string {
		var out []string
		for _, v := range vals {
			if strings.HasPrefix(v, prefix) {
				out = append(out, v)
			}
		}
		return out
	}, true
}

const matchSchema = `{
  "show": {
    "type": "node",
    "description": "Show information",
    "version": {"type": "leafNode", "description": "Show version", "command": "uname -a"},
    "interfaces": {
      "type": "leafNode",
      "description": "Show interfaces",
      "command": "ip link show",
      "<ifname>": {
        "type": "tagNode",
        "description": "interface name",
        "suggestor": "list_interfaces",
        "command": "ip link show dev <ifname>"
      }
    }
  },
  "shutdown": {"type": "leafNode", "description": "Shut down"},
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
  },
  "interfaces": {
    "type": "node",
    "description": "Interface configuration",
    "ethernet": {"type": "node", "description": "Ethernet interface"}
  }
}`

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	tree, err := Parse([]byte(matchSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return NewMatcher(tree, stubLookup{suggestions: map[string][]string{
		"list_interfaces": {"eth0", "eth1", "lo"},
	}})
}

func TestMatchLiterals(t *testing.T) {
	m := newTestMatcher(t)
	match, err := m.Match([]string{"show", "version"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if match.Node.Command != "uname -a" {
		t.Errorf("matched node command = %q", match.Node.Command)
	}
}

func TestMatchUnknownToken(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.Match([]string{"show", "bogus"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errcode.Is(err, errcode.NoSuchCommand) {
		t.Errorf("code = %q, want NOSUCH_COMMAND", errcode.Code(err))
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error should name the failing token: %v", err)
	}

	_, err = m.Match([]string{"nonsense"})
	if !errcode.Is(err, errcode.NoSuchCommand) {
		t.Errorf("first-token code = %q, want NOSUCH_COMMAND", errcode.Code(err))
	}
}

func TestMatchTagCaptures(t *testing.T) {
	m := newTestMatcher(t)
	match, err := m.Match([]string{"ping", "10.0.0.1", "count", "3"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	tags := match.TagValues()
	if len(tags) != 2 {
		t.Fatalf("tag captures = %d, want 2", len(tags))
	}
	if tags[0].Token != "10.0.0.1" || tags[1].Token != "3" {
		t.Errorf("captures = %q, %q", tags[0].Token, tags[1].Token)
	}
	if got := match.ExpandCommand(); got != "ping -c 3 10.0.0.1" {
		t.Errorf("ExpandCommand = %q, want %q", got, "ping -c 3 10.0.0.1")
	}
}

func TestMatchValidatorRejects(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.Match([]string{"ping", "10.0.0.1", "count", "99999999"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errcode.Is(err, errcode.Validation) {
		t.Errorf("code = %q, want VALIDATION_ERROR", errcode.Code(err))
	}
	if !strings.Contains(err.Error(), "99999999") {
		t.Errorf("error should name the token: %v", err)
	}
	if !strings.Contains(err.Error(), "number of requests") {
		t.Errorf("error should name the node description: %v", err)
	}
}

func TestLiteralShadowsTag(t *testing.T) {
	m := newTestMatcher(t)
	// "count" is both a literal child of <host> and a plausible hostname;
	// the literal must win.
	match, err := m.Match([]string{"ping", "count"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(match.Steps) != 2 {
		t.Fatalf("steps = %d", len(match.Steps))
	}
	if !match.Steps[1].IsTag {
		t.Fatal("second step should be the host tag")
	}

	match, err = m.Match([]string{"ping", "count", "count"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if match.Steps[2].IsTag {
		t.Error("literal child must shadow the tag")
	}
	if match.Steps[2].Node.Name != "count" || match.Steps[2].Node.Kind != KindNode {
		t.Errorf("wrong node matched: %v %v", match.Steps[2].Node.Name, match.Steps[2].Node.Kind)
	}
}

func TestResolve(t *testing.T) {
	m := newTestMatcher(t)

	if _, err := m.Resolve([]string{"show", "version"}); err != nil {
		t.Errorf("leaf should resolve: %v", err)
	}
	if _, err := m.Resolve([]string{"ping", "10.0.0.1"}); err != nil {
		t.Errorf("tag with command should resolve: %v", err)
	}

	_, err := m.Resolve([]string{"show"})
	if !errcode.Is(err, errcode.IncompleteCommand) {
		t.Errorf("bare node: code = %q, want INCOMPLETE_COMMAND", errcode.Code(err))
	}
	_, err = m.Resolve([]string{"ping", "10.0.0.1", "count"})
	if !errcode.Is(err, errcode.IncompleteCommand) {
		t.Errorf("node without command: code = %q, want INCOMPLETE_COMMAND", errcode.Code(err))
	}
	_, err = m.Resolve(nil)
	if !errcode.Is(err, errcode.IncompleteCommand) {
		t.Errorf("empty line: code = %q, want INCOMPLETE_COMMAND", errcode.Code(err))
	}
}

func TestCompletePrefixFilter(t *testing.T) {
	m := newTestMatcher(t)
	cands := m.Complete(nil, "sh")
	var names []string
	for _, c := range cands {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"show", "shutdown"}, names); diff != "" {
		t.Errorf("candidates (-want +got):\n%s", diff)
	}
}

func TestCompleteSchemaOrderAndDescriptions(t *testing.T) {
	m := newTestMatcher(t)
	cands := m.Complete([]string{"show"}, "")
	if len(cands) < 2 {
		t.Fatalf("candidates = %v", cands)
	}
	if cands[0].Name != "version" || cands[1].Name != "interfaces" {
		t.Errorf("schema order not preserved: %v", cands)
	}
	if cands[0].Desc != "Show version" {
		t.Errorf("desc = %q", cands[0].Desc)
	}
}

func TestCompleteTagHintAndSuggestor(t *testing.T) {
	m := newTestMatcher(t)

	// No suggestor: the placeholder hint row stands in.
	cands := m.Complete([]string{"ping"}, "")
	found := false
	for _, c := range cands {
		if c.Name == "<host>" && c.Hint && c.Desc == "destination host" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected <host> hint row, got %v", cands)
	}

	// Suggestor present: values follow the hint row, prefix-filtered.
	cands = m.Complete([]string{"show", "interfaces"}, "eth")
	var values []string
	for _, c := range cands {
		if !c.Hint {
			values = append(values, c.Name)
		}
	}
	if diff := cmp.Diff([]string{"eth0", "eth1"}, values); diff != "" {
		t.Errorf("suggestor values (-want +got):\n%s", diff)
	}
}

func TestCompleteExecutableMarker(t *testing.T) {
	m := newTestMatcher(t)
	cands := m.Complete([]string{"show", "interfaces"}, "")
	if len(cands) == 0 || cands[0].Name != "<enter>" || !cands[0].Hint {
		t.Errorf("executable node should lead with <enter> row: %v", cands)
	}

	// A partial token suppresses the <enter> row.
	cands = m.Complete([]string{"show"}, "ver")
	for _, c := range cands {
		if c.Name == "<enter>" {
			t.Error("<enter> row should not appear while typing a token")
		}
	}
}

func TestCompleteDeadEnd(t *testing.T) {
	m := newTestMatcher(t)
	if cands := m.Complete([]string{"no", "such"}, ""); len(cands) != 0 {
		t.Errorf("dead-end walk should yield nothing, got %v", cands)
	}
}

func TestSplitLine(t *testing.T) {
	cases := []struct {
		line    string
		tokens  []string
		partial string
	}{
		{"", nil, ""},
		{"show", nil, "show"},
		{"show ", []string{"show"}, ""},
		{"show ver", []string{"show"}, "ver"},
		{"  show   ver", []string{"show"}, "ver"},
	}
	for _, tc := range cases {
		tokens, partial := SplitLine(tc.line)
		if diff := cmp.Diff(tc.tokens, tokens); diff != "" {
			t.Errorf("SplitLine(%q) tokens (-want +got):\n%s", tc.line, diff)
		}
		if partial != tc.partial {
			t.Errorf("SplitLine(%q) partial = %q, want %q", tc.line, partial, tc.partial)
		}
	}
}
