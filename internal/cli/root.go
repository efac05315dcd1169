// Package cli implements climatectl, the command-line client of the control API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServer  string
	flagTimeout time.Duration
	flagDebug   bool
	flagJSON    bool

	client *Client
)

// defaultServer returns the default server URL, checking CLIMATED_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("CLIMATED_SERVER"); s != "" {
		return s
	}
	return "http://127.0.0.1:8080"
}

// NewRootCmd creates the root cobra command for climatectl.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "climatectl",
		Short: "Control a running climated daemon",
		Long:  "climatectl edits schedules, groups and profiles and triggers advances on a climated daemon.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if flagDebug {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
				Level(level).With().Timestamp().Logger()
			client = NewClient(flagServer, flagTimeout)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "climated API URL (or CLIMATED_SERVER env)")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "Request timeout")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print raw JSON responses")

	root.AddCommand(
		newScheduleCmd(),
		newGroupCmd(),
		newProfileCmd(),
		newAdvanceCmd(),
		newTestFireCmd(),
		newSyncCmd(),
		newSettingsCmd(),
	)

	return root
}

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints v as JSON when --json is set, otherwise calls human.
func render(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	if flagJSON || human == nil {
		return printJSON(cmd.OutOrStdout(), v)
	}
	human(cmd.OutOrStdout())
	return nil
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatTemp(t *float64) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *t)
}
