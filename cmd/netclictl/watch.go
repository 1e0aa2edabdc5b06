package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/psaab/netcli/pkg/api"
)

var (
	watchReplay int
	watchType   string
	watchUser   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream configuration events as they happen",
	Long: `watch tails the daemon's event stream: commits, rollbacks,
saves, schema reloads and session changes, printed as they occur.
Interrupt with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchReplay, "replay", 0, "backfill the latest N events before tailing")
	watchCmd.Flags().StringVar(&watchType, "type", "", "only events of this type")
	watchCmd.Flags().StringVar(&watchUser, "user", "", "only events from this user")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := url.Values{}
	if watchReplay > 0 {
		q.Set("replay", strconv.Itoa(watchReplay))
	}
	if watchType != "" {
		q.Set("type", watchType)
	}
	if watchUser != "" {
		q.Set("user", watchUser)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+withQuery("/api/v1/events/stream", q), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	// The shared client carries a request timeout, which would cut the
	// stream off mid-tail. This one has none; the context ends it.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env envelope
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error != "" {
			return errors.New(env.Error)
		}
		return fmt.Errorf("stream: %s", resp.Status)
	}

	sc := bufio.NewScanner(resp.Body)
	var data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var e api.EventEntry
			if json.Unmarshal([]byte(data), &e) == nil {
				printEvent(e)
			}
			data = ""
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}

func printEvent(e api.EventEntry) {
	line := fmt.Sprintf("%s  %-14s %-10s %s", e.Time, e.Type, e.User, e.Summary)
	fmt.Println(strings.TrimRight(line, " "))
}
