package cli

import (
	"fmt"
	"strings"

	"github.com/psaab/netcli/pkg/cmdhelp"
	"github.com/psaab/netcli/pkg/schema"
)

// completer adapts the schema matchers to readline tab completion.
type completer struct {
	cli *CLI
}

// Do completes the word before the cursor. One candidate is inserted
// with a trailing space, several extend to their common prefix, and when
// nothing can be inserted the help table is printed instead.
func (cp *completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	cands, partial := cp.cli.completeLine(text)
	names := cmdhelp.FilterPrefix(cmdhelp.Insertable(cands), partial)
	plen := len([]rune(partial))

	switch len(names) {
	case 0:
		return nil, plen
	case 1:
		suffix := []rune(names[0])[plen:]
		return [][]rune{append(suffix, ' ')}, plen
	}

	if common := cmdhelp.CommonPrefix(names); len([]rune(common)) > plen {
		return [][]rune{[]rune(common)[plen:]}, plen
	}
	cmdhelp.WriteHelp(cp.cli.helpOut(), cands)
	return nil, plen
}

// helpListener intercepts '?': the character readline just inserted is
// stripped back out of the line and the context help printed instead.
func (c *CLI) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos == 0 || pos > len(line) || line[pos-1] != '?' {
		return nil, 0, false
	}
	clean := make([]rune, 0, len(line)-1)
	clean = append(clean, line[:pos-1]...)
	clean = append(clean, line[pos:]...)

	w := c.helpOut()
	cands, _ := c.completeLine(string(clean[:pos-1]))
	if len(cands) == 0 {
		fmt.Fprintln(w, "no valid completions")
	} else {
		cmdhelp.WriteHelp(w, cands)
	}
	return clean, pos - 1, true
}

// completeLine produces candidates for the text before the cursor,
// honoring the mode, "run" in configuration mode, and pipe stages.
func (c *CLI) completeLine(text string) ([]schema.Candidate, string) {
	if i := strings.LastIndex(text, " | "); i >= 0 {
		return c.completePipe(text[:i], text[i+3:])
	}
	if !c.store.InConfigMode() {
		tokens, partial := schema.SplitLine(text)
		return c.opMatch.Load().Complete(tokens, partial), partial
	}
	if rest, ok := strings.CutPrefix(text, "run "); ok {
		tokens, partial := schema.SplitLine(rest)
		return c.opMatch.Load().Complete(tokens, partial), partial
	}
	tokens, partial := schema.SplitLine(text)
	return c.cfgMatch.Load().Complete(tokens, partial), partial
}

// completePipe completes the filter stage after the last '|'. The show
// command in configuration mode additionally accepts compare and
// display modifiers.
func (c *CLI) completePipe(base, after string) ([]schema.Candidate, string) {
	configShow := c.store.InConfigMode() && firstField(base) == "show"
	fields, partial := schema.SplitLine(after)

	if len(fields) == 0 {
		return pipeFilterCandidates(partial, configShow), partial
	}
	if configShow && len(fields) == 1 && fields[0] == "display" && strings.HasPrefix("set", partial) {
		return []schema.Candidate{{Name: "set", Desc: "Show as set commands"}}, partial
	}
	return nil, partial
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
