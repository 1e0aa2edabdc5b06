package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psaab/netcli/pkg/api"
)

var (
	commitComment   string
	commitConfirmed int
	commitCheck     bool
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the candidate configuration",
	Args:  cobra.NoArgs,
	RunE:  runCommit,
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm a pending confirmed commit",
	Args:  cobra.NoArgs,
	RunE:  runConfirm,
}

func init() {
	commitCmd.Flags().StringVar(&commitComment, "comment", "", "record a comment with the commit")
	commitCmd.Flags().IntVar(&commitConfirmed, "confirmed", 0, "auto-rollback unless confirmed within this many minutes")
	commitCmd.Flags().BoolVar(&commitCheck, "check", false, "validate without applying")
	rootCmd.AddCommand(commitCmd, confirmCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}

	var res api.CommitResponse
	switch {
	case commitCheck:
		err = c.post(cmd.Context(), "/api/v1/config/commit-check", nil, &res)
	case commitConfirmed > 0:
		in := api.CommitConfirmedRequest{Minutes: commitConfirmed, Comment: commitComment}
		err = c.post(cmd.Context(), "/api/v1/config/commit-confirmed", in, &res)
	default:
		in := api.CommitRequest{Comment: commitComment}
		err = c.post(cmd.Context(), "/api/v1/config/commit", in, &res)
	}
	if err != nil {
		return err
	}

	fmt.Println(res.Message)
	if res.ConfirmBy != "" {
		fmt.Printf("will be rolled back unless confirmed by %s\n", res.ConfirmBy)
	}
	if res.PersistError != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", res.PersistError)
	}
	return nil
}

func runConfirm(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	var out api.TextResponse
	if err := c.post(cmd.Context(), "/api/v1/config/confirm", nil, &out); err != nil {
		return err
	}
	fmt.Println(out.Output)
	return nil
}
