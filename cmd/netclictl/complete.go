package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/psaab/netcli/pkg/api"
)

var completeMode string

var completeCmd = &cobra.Command{
	Use:   "complete <partial command>",
	Short: "List completion candidates for a partial command line",
	Long: `complete asks the daemon what could follow a partial command
line, the same candidates the console shell offers for '?'. Quote the
line to keep a trailing space, which completes the next word instead
of the current one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVar(&completeMode, "mode", "operational", "command tree: operational or config")
	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}

	in := api.CompleteRequest{Line: strings.Join(args, " "), Mode: completeMode}
	var out []api.CandidateInfo
	if err := c.post(cmd.Context(), "/api/v1/complete", in, &out); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, cand := range out {
		fmt.Fprintf(w, "%s\t%s\n", cand.Name, cand.Desc)
	}
	return w.Flush()
}
