// netclid is the network configuration daemon. It owns the running and
// candidate configuration trees, validates edits against the device
// schema, renders commits into the operating system, and serves the
// local console plus the HTTP admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/psaab/netcli/pkg/daemon"
)

// version is stamped by the build.
var version = "dev"

func main() {
	bootstrap := flag.String("bootstrap", "",
		fmt.Sprintf("TOML bootstrap file (default %s when present)", daemon.DefaultBootstrapPath))
	configDir := flag.String("config-dir", "", "configuration directory (overrides bootstrap)")
	schemaDir := flag.String("schema-dir", "", "schema document directory (overrides bootstrap)")
	apiAddr := flag.String("api-addr", "", "HTTP API listen address (overrides bootstrap)")
	hostname := flag.String("hostname", "", "hostname for prompts and status")
	noRenderers := flag.Bool("no-renderers", false, "log commits instead of touching the system")
	noConsole := flag.Bool("no-console", false, "run headless without the local console")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("netclid", version)
		return
	}

	d, err := daemon.New(daemon.Options{
		BootstrapFile: *bootstrap,
		ConfigDir:     *configDir,
		SchemaDir:     *schemaDir,
		APIAddr:       *apiAddr,
		Hostname:      *hostname,
		NoRenderers:   *noRenderers,
		NoConsole:     *noConsole,
		Debug:         *debug,
		Version:       version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "netclid: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "netclid: %v\n", err)
		os.Exit(1)
	}
}
