package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/psaab/netcli/pkg/api"
	"github.com/psaab/netcli/pkg/audit"
)

var (
	historyArchive bool
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List commit history",
	Long: `history lists the daemon's in-memory rollback points. With
--archive it lists the persistent commit archive instead, which also
covers commits from before the last daemon restart.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [n]",
	Short: "Load a previous configuration into the candidate",
	Long: `rollback loads rollback point n into the candidate; 0 (the
default) resets the candidate to the running configuration. The result
still needs a commit to take effect.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

func init() {
	historyCmd.Flags().BoolVar(&historyArchive, "archive", false, "read the persistent commit archive")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "rows to list (0 = server default)")
	rootCmd.AddCommand(historyCmd, rollbackCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if historyArchive {
		q := url.Values{}
		if historyLimit > 0 {
			q.Set("limit", strconv.Itoa(historyLimit))
		}
		var rows []audit.Entry
		if err := c.get(cmd.Context(), withQuery("/api/v1/commits", q), &rows); err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tTIME\tUSER\tRESULT\tCHANGES\tCOMMENT")
		for _, e := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				e.ID, e.Time.Local().Format(time.DateTime), e.User, e.Result, e.Changes, e.Comment)
		}
		return w.Flush()
	}

	var rows []api.HistoryEntry
	if err := c.get(cmd.Context(), "/api/v1/config/history", &rows); err != nil {
		return err
	}
	fmt.Fprintln(w, "ROLLBACK\tTIME\tUSER\tCOMMENT")
	for _, e := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Index, e.Timestamp, e.User, e.Comment)
	}
	return w.Flush()
}

func runRollback(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	n := 0
	if len(args) == 1 {
		n, err = strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid rollback index %q", args[0])
		}
	}

	in := api.RollbackRequest{N: n}
	var out api.TextResponse
	err = c.post(cmd.Context(), "/api/v1/config/rollback", in, &out)
	if isNoSession(err) {
		if err := c.post(cmd.Context(), "/api/v1/config/enter", nil, nil); err != nil {
			return err
		}
		err = c.post(cmd.Context(), "/api/v1/config/rollback", in, &out)
	}
	if err != nil {
		return err
	}
	fmt.Println(out.Output)
	return nil
}
