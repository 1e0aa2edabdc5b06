package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/psaab/netcli/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	eventsLimit int
	eventsType  string
	eventsUser  string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent configuration events",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "events to list")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type")
	eventsCmd.Flags().StringVar(&eventsUser, "user", "", "filter by user")
	rootCmd.AddCommand(statusCmd, eventsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	var st api.StatusResponse
	if err := c.get(cmd.Context(), "/api/v1/status", &st); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Hostname:\t%s\n", st.Hostname)
	fmt.Fprintf(w, "Version:\t%s\n", st.Version)
	if st.Kernel != "" {
		fmt.Fprintf(w, "Kernel:\t%s\n", st.Kernel)
	}
	fmt.Fprintf(w, "Uptime:\t%s\n", st.Uptime)
	fmt.Fprintf(w, "Config file:\t%s\n", st.ConfigPath)
	mode := "operational"
	if st.InConfigMode {
		mode = "configuration"
		if st.Dirty {
			mode += " (uncommitted changes)"
		}
	}
	fmt.Fprintf(w, "Mode:\t%s\n", mode)
	fmt.Fprintf(w, "Commit state:\t%s\n", st.CommitState)
	if st.ConfirmPending {
		fmt.Fprintf(w, "Confirm by:\t%s\n", st.ConfirmBy)
	}
	fmt.Fprintf(w, "Rollback points:\t%d\n", st.HistoryLength)
	return w.Flush()
}

func runEvents(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	q := url.Values{}
	if eventsLimit > 0 {
		q.Set("limit", strconv.Itoa(eventsLimit))
	}
	if eventsType != "" {
		q.Set("type", eventsType)
	}
	if eventsUser != "" {
		q.Set("user", eventsUser)
	}
	var events []api.EventEntry
	if err := c.get(cmd.Context(), withQuery("/api/v1/events", q), &events); err != nil {
		return err
	}
	for _, e := range events {
		printEvent(e)
	}
	return nil
}
