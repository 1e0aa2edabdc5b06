package schema

import (
	"fmt"
	"strings"

	"github.com/agilira/go-errors"

	"github.com/psaab/netcli/pkg/errcode"
)

// ValidateFunc checks one tag token. args carries the node's enum values.
type ValidateFunc func(token string, args []string) error

// SuggestFunc returns completion values for a tag token, already filtered
// by prefix. args comes from the node's suggestor_args.
type SuggestFunc func(prefix string, args []string) []string

// Lookup resolves validator and suggestor IDs. Implemented by valid.Registry.
type Lookup interface {
	Validator(id string) (ValidateFunc, bool)
	Suggestor(id string) (SuggestFunc, bool)
}

// Matcher walks a tree against user input: matching, completion, and
// execution resolution all use the same walk, so behavior cannot drift
// between them.
type Matcher struct {
	tree *Tree
	reg  Lookup
}

func NewMatcher(tree *Tree, reg Lookup) *Matcher {
	return &Matcher{tree: tree, reg: reg}
}

// Tree returns the tree this matcher walks.
func (m *Matcher) Tree() *Tree { return m.tree }

// Step records one consumed token.
type Step struct {
	Token string
	Node  *Node
	IsTag bool
}

// Match is the result of walking a full command line.
type Match struct {
	Node  *Node
	Steps []Step
}

// TagValues returns the captured tag tokens in order of appearance.
func (m *Match) TagValues() []Step {
	var tags []Step
	for _, s := range m.Steps {
		if s.IsTag {
			tags = append(tags, s)
		}
	}
	return tags
}

// Match consumes every token. A literal child shadows the tag child when
// both could match. Tag tokens run their validator; the first failure
// aborts the walk.
func (m *Matcher) Match(tokens []string) (*Match, error) {
	return m.walk(tokens, true)
}

func (m *Matcher) walk(tokens []string, validate bool) (*Match, error) {
	node := m.tree.Root
	steps := make([]Step, 0, len(tokens))
	for i, tok := range tokens {
		if child := node.Child(tok); child != nil {
			node = child
			steps = append(steps, Step{Token: tok, Node: child})
			continue
		}
		if tag := node.Tag; tag != nil {
			if validate {
				if err := m.validateToken(tag, tok); err != nil {
					return nil, err
				}
			}
			node = tag
			steps = append(steps, Step{Token: tok, Node: tag, IsTag: true})
			continue
		}
		prefix := strings.Join(tokens[:i], " ")
		msg := fmt.Sprintf("unknown command: %q", tok)
		if prefix != "" {
			msg = fmt.Sprintf("unknown command: %q after %q", tok, prefix)
		}
		return nil, errors.New(errcode.NoSuchCommand, msg)
	}
	return &Match{Node: node, Steps: steps}, nil
}

func (m *Matcher) validateToken(tag *Node, tok string) error {
	if tag.Validator == "" || m.reg == nil {
		return nil
	}
	fn, ok := m.reg.Validator(tag.Validator)
	if !ok {
		return errors.New(errcode.Validation,
			fmt.Sprintf("no validator %q for %s", tag.Validator, tag.Placeholder()))
	}
	if err := fn(tok, tag.EnumValues); err != nil {
		what := tag.Description
		if what == "" {
			what = strings.ReplaceAll(tag.Validator, "-", " ")
		}
		return errors.New(errcode.Validation,
			fmt.Sprintf("'%s' is not a valid %s", tok, what)).
			WithContext("token", tok)
	}
	return nil
}

// Resolve matches the line and requires the final node to be executable.
func (m *Matcher) Resolve(tokens []string) (*Match, error) {
	match, err := m.Match(tokens)
	if err != nil {
		return nil, err
	}
	if match.Node == m.tree.Root || !match.Node.Executable() {
		return nil, errors.New(errcode.IncompleteCommand, "incomplete command")
	}
	return match, nil
}

// ExpandCommand substitutes captured tag values into the node's command
// template, each placeholder replaced by its tag's value in order of
// appearance along the path.
func (m *Match) ExpandCommand() string {
	cmd := m.Node.Command
	for _, s := range m.TagValues() {
		cmd = strings.ReplaceAll(cmd, s.Node.Placeholder(), s.Token)
	}
	return cmd
}

// Candidate is one completion row.
type Candidate struct {
	Name string
	Desc string
	// Hint rows are display-only: placeholder and <enter> markers that
	// must not be inserted by tab completion.
	Hint bool
}

// Complete walks the already-complete tokens without validating them, then
// lists what may follow: literal children matching the partial token in
// declaration order, the tag placeholder hint, and suggestor values.
// A dead-end walk yields no candidates rather than an error.
func (m *Matcher) Complete(tokens []string, partial string) []Candidate {
	match, err := m.walk(tokens, false)
	if err != nil {
		return nil
	}
	node := match.Node

	var cands []Candidate
	if node.Executable() && partial == "" {
		cands = append(cands, Candidate{Name: "<enter>", Desc: "Execute the current command", Hint: true})
	}
	for _, c := range node.Children {
		if strings.HasPrefix(c.Name, partial) {
			cands = append(cands, Candidate{Name: c.Name, Desc: c.Description})
		}
	}
	if tag := node.Tag; tag != nil {
		cands = append(cands, Candidate{Name: tag.Placeholder(), Desc: tag.Description, Hint: true})
		if tag.Suggestor != "" && m.reg != nil {
			if fn, ok := m.reg.Suggestor(tag.Suggestor); ok {
				for _, v := range fn(partial, tag.SuggestorArgs) {
					cands = append(cands, Candidate{Name: v})
				}
			}
		}
	}
	return cands
}

// CompleteLine splits a raw input line for completion: tokens before the
// cursor are walked, and the trailing partial token (empty if the line ends
// in whitespace) is completed.
func (m *Matcher) CompleteLine(line string) []Candidate {
	tokens, partial := SplitLine(line)
	return m.Complete(tokens, partial)
}

// SplitLine tokenizes a command line for completion: a line with trailing
// whitespace completes a fresh token, otherwise the last field is the
// partial token being typed.
func SplitLine(line string) (tokens []string, partial string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ""
	}
	if strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
		return fields, ""
	}
	return fields[:len(fields)-1], fields[len(fields)-1]
}
