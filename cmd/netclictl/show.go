package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psaab/netcli/pkg/api"
)

var (
	showAsSet     bool
	showCandidate bool
)

var showCmd = &cobra.Command{
	Use:   "show [path...]",
	Short: "Show the running configuration, optionally scoped to a path",
	RunE:  runShow,
}

var compareCommands bool

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Show pending candidate changes",
	Args:  cobra.NoArgs,
	RunE:  runCompare,
}

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the running configuration",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	showCmd.Flags().BoolVar(&showAsSet, "set", false, "render as flat set commands")
	showCmd.Flags().BoolVar(&showCandidate, "candidate", false, "show the candidate instead of the running configuration")
	compareCmd.Flags().BoolVar(&compareCommands, "commands", false, "render as set/delete commands")
	exportCmd.Flags().StringVar(&exportFormat, "format", "text", "output format: text, set, or json")
	rootCmd.AddCommand(showCmd, compareCmd, exportCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}

	q := url.Values{}
	if showCandidate {
		q.Set("source", "candidate")
	}
	endpoint := "/api/v1/config/show"
	if showAsSet {
		// The set rendering is whole-tree.
		if len(args) > 0 {
			return errors.New("--set does not take a path")
		}
		endpoint = "/api/v1/config/show-set"
	} else if len(args) > 0 {
		q.Set("path", strings.Join(args, " "))
	}

	var out api.TextResponse
	if err := c.get(cmd.Context(), withQuery(endpoint, q), &out); err != nil {
		return err
	}
	fmt.Print(out.Output)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	q := url.Values{}
	if compareCommands {
		q.Set("format", "commands")
	}
	var out api.TextResponse
	if err := c.get(cmd.Context(), withQuery("/api/v1/config/compare", q), &out); err != nil {
		return err
	}
	fmt.Print(out.Output)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	q := url.Values{"format": {exportFormat}}
	var out api.TextResponse
	if err := c.get(cmd.Context(), withQuery("/api/v1/config/export", q), &out); err != nil {
		return err
	}
	fmt.Print(out.Output)
	if !strings.HasSuffix(out.Output, "\n") {
		fmt.Println()
	}
	return nil
}
