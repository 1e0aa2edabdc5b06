package cli

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"

	"github.com/psaab/netcli/pkg/errcode"
	"github.com/psaab/netcli/pkg/schema"
)

// filter is one parsed output filter stage.
type filter struct {
	verb string
	arg  string
}

// lastDefault is how many lines "last" shows without an argument.
const lastDefault = 10

// extractPipe splits a trailing output filter off the command line. Only
// the last pipe stage is considered, and only known filter verbs are
// taken; anything else, like "| compare", stays on the line for the
// command itself to interpret.
func extractPipe(line string) (string, *filter, error) {
	i := strings.LastIndex(line, " | ")
	if i < 0 {
		return line, nil, nil
	}
	rest := strings.Fields(line[i+3:])
	if len(rest) == 0 {
		return line, nil, nil
	}
	verb := rest[0]
	if verb == "grep" {
		verb = "match"
	}
	if !knownFilter(verb) {
		return line, nil, nil
	}

	f := &filter{verb: verb, arg: strings.Join(rest[1:], " ")}
	switch verb {
	case "match", "except", "find":
		if f.arg == "" {
			return "", nil, errors.New(errcode.IncompleteCommand, verb+" requires a pattern")
		}
	case "count", "no-more":
		if f.arg != "" {
			return "", nil, errors.New(errcode.NoSuchCommand, verb+" takes no argument")
		}
	case "last":
		if f.arg != "" {
			if n, err := strconv.Atoi(f.arg); err != nil || n < 1 {
				return "", nil, errors.New(errcode.Validation, fmt.Sprintf("invalid line count %q", f.arg))
			}
		}
	}
	return strings.TrimSpace(line[:i]), f, nil
}

func knownFilter(verb string) bool {
	switch verb {
	case "match", "except", "find", "count", "last", "no-more":
		return true
	}
	return false
}

// apply runs the filter over the captured command output.
func (f *filter) apply(w io.Writer, text string) error {
	switch f.verb {
	case "no-more":
		// Paging is not implemented, so no-more is a passthrough.
		_, err := io.WriteString(w, text)
		return err
	case "count":
		_, err := fmt.Fprintf(w, "Count: %d lines\n", len(splitLines(text)))
		return err
	case "last":
		n := lastDefault
		if f.arg != "" {
			n, _ = strconv.Atoi(f.arg)
		}
		lines := splitLines(text)
		if len(lines) > n {
			lines = lines[len(lines)-n:]
		}
		return writeLines(w, lines)
	}

	re, err := regexp.Compile(f.arg)
	if err != nil {
		return errors.Wrap(err, errcode.Validation, "bad filter pattern")
	}
	lines := splitLines(text)
	var out []string
	switch f.verb {
	case "match":
		for _, l := range lines {
			if re.MatchString(l) {
				out = append(out, l)
			}
		}
	case "except":
		for _, l := range lines {
			if !re.MatchString(l) {
				out = append(out, l)
			}
		}
	case "find":
		for i, l := range lines {
			if re.MatchString(l) {
				out = lines[i:]
				break
			}
		}
	}
	return writeLines(w, out)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// pipeFilterCandidates lists the filters accepted after '|', optionally
// with the configuration-mode show modifiers mixed in.
func pipeFilterCandidates(prefix string, configShow bool) []schema.Candidate {
	all := []schema.Candidate{
		{Name: "count", Desc: "Count the lines in the output"},
		{Name: "except", Desc: "Show only lines that do not match a pattern"},
		{Name: "find", Desc: "Start output at the first matching line"},
		{Name: "last", Desc: "Show only the last lines of output"},
		{Name: "match", Desc: "Show only lines that match a pattern"},
		{Name: "no-more", Desc: "Do not page the output"},
	}
	if configShow {
		all = append(all,
			schema.Candidate{Name: "compare", Desc: "Show changes against the running configuration"},
			schema.Candidate{Name: "display", Desc: "Change the output format"},
		)
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	}

	var out []schema.Candidate
	for _, c := range all {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}
