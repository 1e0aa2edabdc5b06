package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is stamped by the build.
var version = "dev"

var (
	flagAddr    string
	flagToken   string
	flagUser    string
	flagPass    string
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "netclictl",
	Short: "Remote CLI for the netclid configuration daemon",
	Long: `netclictl drives a netclid daemon over its HTTP API.

Configuration edits work on the daemon's single shared candidate: set,
delete, and rollback open the configuration session when none is open,
and the session stays open across invocations until commit, exit, or
discard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "127.0.0.1:8330", "netclid API address")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token ($NETCLI_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "username for basic auth")
	rootCmd.PersistentFlags().StringVar(&flagPass, "password", "", "password for basic auth")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Version = version
}

// client builds the API client from the persistent flags.
func client() (*apiClient, error) {
	token := flagToken
	if token == "" {
		token = os.Getenv("NETCLI_TOKEN")
	}
	return newClient(flagAddr, token, flagUser, flagPass, flagTimeout)
}
