// netclictl is the remote client for netclid: one-shot configuration
// commands, commit control, history, completion, and an event tail,
// all over the daemon's HTTP API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "netclictl: %v\n", err)
		os.Exit(1)
	}
}
