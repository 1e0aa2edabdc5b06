// Package cmdhelp renders completion candidates the way both the local
// and remote CLIs display them. Candidates are printed in the order
// given; the schema's declaration order is part of the interface and
// must survive to the screen.
package cmdhelp

import (
	"fmt"
	"io"
	"strings"

	"github.com/psaab/netcli/pkg/schema"
)

// WriteHelp prints aligned completion candidates to w. The entire
// output is built as a single string and written in one call so that
// readline's wrapped writer triggers only one refresh cycle.
func WriteHelp(w io.Writer, candidates []schema.Candidate) {
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// Insertable returns the candidate names tab completion may insert,
// excluding display-only hint rows (placeholders and <enter>).
func Insertable(candidates []schema.Candidate) []string {
	var names []string
	for _, c := range candidates {
		if !c.Hint {
			names = append(names, c.Name)
		}
	}
	return names
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}
