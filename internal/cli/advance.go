package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/climated/internal/coordinator"
	"github.com/dokzlo13/climated/internal/emitter"
	"github.com/dokzlo13/climated/internal/override"
	"github.com/dokzlo13/climated/internal/schedule"
)

const timeLayout = "2006-01-02 15:04 MST"

func newAdvanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <target>",
		Short: "Skip a group ahead to its next node",
		Long:  "Skip a group ahead to its next node. Advancing an entity advances its whole group.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var o override.Override
			if err := client.Post("/advance/"+seg(args[0]), nil, &o); err != nil {
				return fmt.Errorf("advance: %w", err)
			}
			return render(cmd, o, func(w io.Writer) {
				fmt.Fprintf(w, "Advanced %s to %s (%s, %s)\n", o.Group, o.TargetNode.Time, formatTemp(o.TargetNode.Temp), o.TargetDay)
				fmt.Fprintf(w, "  Expires at %s\n", o.NaturalTime.Format(timeLayout))
			})
		},
	}
	cmd.AddCommand(newAdvanceCancelCmd(), newAdvanceStatusCmd(), newAdvanceClearCmd())
	return cmd
}

func newAdvanceCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <target>",
		Short: "Cancel an active advance and return to the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Cancelled bool `json:"cancelled"`
			}
			if err := client.Delete("/advance/"+seg(args[0]), &res); err != nil {
				return fmt.Errorf("cancel advance: %w", err)
			}
			return render(cmd, res, func(w io.Writer) {
				if res.Cancelled {
					fmt.Fprintf(w, "Advance cancelled: %s\n", args[0])
				} else {
					fmt.Fprintf(w, "No active advance on %s\n", args[0])
				}
			})
		},
	}
}

func newAdvanceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <target>",
		Short: "Show the advance state and the last day of history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st coordinator.AdvanceStatus
			if err := client.Get("/advance/"+seg(args[0]), &st); err != nil {
				return fmt.Errorf("advance status: %w", err)
			}
			return render(cmd, st, func(w io.Writer) { printAdvanceStatus(w, st) })
		},
	}
}

func printAdvanceStatus(w io.Writer, st coordinator.AdvanceStatus) {
	if st.IsActive && st.TargetNode != nil && st.NaturalTime != nil {
		fmt.Fprintf(w, "Group %s: advanced to %s (%s) until %s\n",
			st.Group, st.TargetNode.Time, formatTemp(st.TargetNode.Temp), st.NaturalTime.Format(timeLayout))
	} else {
		fmt.Fprintf(w, "Group %s: following schedule\n", st.Group)
	}
	if len(st.History) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVATED\tTARGET\tDAY\tENDED\tREASON")
	for _, e := range st.History {
		ended := "-"
		if e.EndedAt != nil {
			ended = e.EndedAt.Format(timeLayout)
		}
		reason := string(e.EndReason)
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ActivatedAt.Format(timeLayout), e.TargetNode.Time, e.TargetDay, ended, reason)
	}
	tw.Flush()
}

func newAdvanceClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history <target>",
		Short: "Delete a group's advance history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Deleted int64 `json:"deleted"`
			}
			if err := client.Delete("/advance/"+seg(args[0])+"/history", &res); err != nil {
				return fmt.Errorf("clear advance history: %w", err)
			}
			return render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d history entries\n", res.Deleted)
			})
		},
	}
}

func newTestFireCmd() *cobra.Command {
	var (
		day  string
		node string
	)
	cmd := &cobra.Command{
		Use:   "test-fire <target>",
		Short: "Emit a test transition event without touching devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if day != "" {
				body["day"] = day
			}
			if node != "" {
				nodes, err := parseNodes([]string{node})
				if err != nil {
					return err
				}
				body["node"] = nodes[0]
			}
			var t emitter.Transition
			if err := client.Post("/events/test/"+seg(args[0]), body, &t); err != nil {
				return fmt.Errorf("test fire: %w", err)
			}
			return render(cmd, t, func(w io.Writer) {
				fmt.Fprintf(w, "Event %s: %s at %s (%s, %s)\n",
					t.ID, t.Group, t.Node.Time, formatTemp(t.Node.Temp), t.Day)
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "Day key to report")
	cmd.Flags().StringVar(&node, "node", "", "Node to fire as HH:MM=TEMP[/HVAC] instead of the current one")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [target]",
		Short: "Re-apply the current node to one group or every active group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if len(args) == 1 {
				body = map[string]string{"target": args[0]}
			}
			var res struct {
				Synced int `json:"synced"`
			}
			if err := client.Post("/sync", body, &res); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			return render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Synced %d groups at %s\n", res.Synced, time.Now().Format(timeLayout))
			})
		},
	}
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show global settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s schedule.Settings
			if err := client.Get("/settings", &s); err != nil {
				return fmt.Errorf("get settings: %w", err)
			}
			return render(cmd, s, func(w io.Writer) { printSettings(w, s) })
		},
	}

	var minTemp, maxTemp float64
	set := &cobra.Command{
		Use:   "set",
		Short: "Update global temperature bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]float64{}
			if cmd.Flags().Changed("min-temp") {
				body["min_temp"] = minTemp
			}
			if cmd.Flags().Changed("max-temp") {
				body["max_temp"] = maxTemp
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to update: pass --min-temp or --max-temp")
			}
			var s schedule.Settings
			if err := client.Put("/settings", body, &s); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			return render(cmd, s, func(w io.Writer) { printSettings(w, s) })
		},
	}
	set.Flags().Float64Var(&minTemp, "min-temp", 0, "Lowest setpoint sent to devices")
	set.Flags().Float64Var(&maxTemp, "max-temp", 0, "Highest setpoint sent to devices")
	cmd.AddCommand(set)
	return cmd
}

func printSettings(w io.Writer, s schedule.Settings) {
	fmt.Fprintf(w, "min_temp: %.1f\nmax_temp: %.1f\n", s.MinTemp, s.MaxTemp)
}
