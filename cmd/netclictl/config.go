package main

import (
	"fmt"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/psaab/netcli/pkg/api"
)

var setCmd = &cobra.Command{
	Use:   "set <path...>",
	Short: "Set a configuration path in the candidate",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInput(cmd, "/api/v1/config/set", args)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <path...>",
	Short: "Delete a configuration path from the candidate",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInput(cmd, "/api/v1/config/delete", args)
	},
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Open the shared configuration session",
	Args:  cobra.NoArgs,
	RunE:  runConfigure,
}

var exitDiscard bool

var exitCmd = &cobra.Command{
	Use:   "exit",
	Short: "Close the configuration session",
	Args:  cobra.NoArgs,
	RunE:  runExit,
}

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Reset the candidate to the running configuration",
	Args:  cobra.NoArgs,
	RunE:  runDiscard,
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist the running configuration to disk",
	Args:  cobra.NoArgs,
	RunE:  runSave,
}

func init() {
	exitCmd.Flags().BoolVar(&exitDiscard, "discard", false, "drop uncommitted changes")
	rootCmd.AddCommand(setCmd, deleteCmd, configureCmd, exitCmd, discardCmd, saveCmd)
}

// runConfigInput sends one set or delete line, opening the
// configuration session first when none is open.
func runConfigInput(cmd *cobra.Command, endpoint string, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	in := api.ConfigInputRequest{Input: shellquote.Join(args...)}
	err = c.post(cmd.Context(), endpoint, in, nil)
	if isNoSession(err) {
		if err := c.post(cmd.Context(), "/api/v1/config/enter", nil, nil); err != nil {
			return err
		}
		err = c.post(cmd.Context(), endpoint, in, nil)
	}
	return err
}

func runConfigure(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	if err := c.post(cmd.Context(), "/api/v1/config/enter", nil, nil); err != nil {
		return err
	}
	fmt.Println("configuration session opened")
	return nil
}

func runExit(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	in := api.ConfigExitRequest{Discard: exitDiscard}
	if err := c.post(cmd.Context(), "/api/v1/config/exit", in, nil); err != nil {
		return err
	}
	fmt.Println("configuration session closed")
	return nil
}

func runDiscard(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	var out api.TextResponse
	if err := c.post(cmd.Context(), "/api/v1/config/discard", nil, &out); err != nil {
		return err
	}
	fmt.Println(out.Output)
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	var out api.TextResponse
	if err := c.post(cmd.Context(), "/api/v1/config/save", nil, &out); err != nil {
		return err
	}
	fmt.Println(out.Output)
	return nil
}
