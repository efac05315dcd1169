package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/climated/internal/schedule"
)

type scheduleView struct {
	Group     schedule.Group    `json:"group"`
	Effective schedule.Schedule `json:"effective"`
}

type upcomingView struct {
	Group string `json:"group"`
	Next  []struct {
		Node schedule.Node   `json:"node"`
		Day  schedule.DayKey `json:"day"`
		At   time.Time       `json:"at"`
	} `json:"next"`
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"sched"},
		Short:   "Show and edit schedules",
	}
	cmd.AddCommand(
		newScheduleGetCmd(),
		newScheduleSetCmd(),
		newScheduleTargetCmd("clear", "Empty the schedule and disable the group", "DELETE", ""),
		newScheduleTargetCmd("enable", "Enable scheduling", "POST", "/enable"),
		newScheduleTargetCmd("disable", "Disable scheduling", "POST", "/disable"),
		newScheduleIgnoreCmd(),
		newScheduleUpcomingCmd(),
	)
	return cmd
}

func newScheduleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <target>",
		Short: "Show the effective schedule of a group or entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view scheduleView
			if err := client.Get("/schedules/"+seg(args[0]), &view); err != nil {
				return fmt.Errorf("get schedule: %w", err)
			}
			return render(cmd, view, func(w io.Writer) { printSchedule(w, view) })
		},
	}
}

func newScheduleSetCmd() *cobra.Command {
	var (
		day  string
		mode string
		file string
	)
	cmd := &cobra.Command{
		Use:   "set <target> [HH:MM=TEMP[/HVAC] ...]",
		Short: "Replace the nodes of one day of a schedule",
		Long: "Replace the nodes of one day of a schedule. Nodes are given as HH:MM=TEMP, " +
			"optionally followed by /HVAC_MODE; use - for no temperature. " +
			"Setting a schedule on an unknown entity creates a single-entity group.",
		Example: "  climatectl schedule set climate.bedroom 06:30=21 22:00=18\n" +
			"  climatectl schedule set living 07:00=21/heat 23:00=-/off --mode 5/2 --day weekend",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var nodes []schedule.Node
			var err error
			if file != "" {
				nodes, err = readNodes(file)
			} else {
				nodes, err = parseNodes(args[1:])
			}
			if err != nil {
				return err
			}

			body := map[string]any{"nodes": nodes, "day": day, "schedule_mode": mode}
			var view scheduleView
			if err := client.Put("/schedules/"+seg(args[0]), body, &view); err != nil {
				return fmt.Errorf("set schedule: %w", err)
			}
			return render(cmd, view, func(w io.Writer) { printSchedule(w, view) })
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "Day key to replace (all_days, weekday, weekend, mon..sun)")
	cmd.Flags().StringVar(&mode, "mode", "", "Switch schedule mode (all_days, 5/2, individual)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read nodes from a JSON file")
	return cmd
}

// newScheduleTargetCmd builds a command that only takes a target.
func newScheduleTargetCmd(use, short, method, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <target>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/schedules/" + seg(args[0]) + suffix
			var view scheduleView
			var err error
			if method == "DELETE" {
				err = client.Delete(path, &view)
			} else {
				err = client.Post(path, nil, &view)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return render(cmd, view, func(w io.Writer) { printSchedule(w, view) })
		},
	}
}

func newScheduleIgnoreCmd() *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:   "ignore <target>",
		Short: "Exclude a group from scheduling without touching its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view scheduleView
			body := map[string]bool{"ignored": !unset}
			if err := client.Post("/schedules/"+seg(args[0])+"/ignore", body, &view); err != nil {
				return fmt.Errorf("ignore: %w", err)
			}
			return render(cmd, view, func(w io.Writer) { printSchedule(w, view) })
		},
	}
	cmd.Flags().BoolVar(&unset, "unset", false, "Include the group again")
	return cmd
}

func newScheduleUpcomingCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "upcoming <target>",
		Short: "List the next activations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view upcomingView
			path := fmt.Sprintf("/schedules/%s/upcoming?count=%d", seg(args[0]), count)
			if err := client.Get(path, &view); err != nil {
				return fmt.Errorf("upcoming: %w", err)
			}
			return render(cmd, view, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "AT\tDAY\tTEMP\tHVAC")
				for _, n := range view.Next {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
						n.At.Format("2006-01-02 15:04 MST"), n.Day, formatTemp(n.Node.Temp), orDash(n.Node.HVACMode))
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of activations")
	return cmd
}

func printSchedule(w io.Writer, v scheduleView) {
	g := v.Group
	state := "enabled"
	switch {
	case g.Ignored:
		state = "ignored"
	case !g.Enabled:
		state = "disabled"
	}
	fmt.Fprintf(w, "Group:    %s (%s)\n", g.Name, state)
	fmt.Fprintf(w, "Entities: %s\n", strings.Join(g.Entities, ", "))
	if g.ActiveProfile != "" {
		fmt.Fprintf(w, "Profile:  %s\n", g.ActiveProfile)
	}
	fmt.Fprintf(w, "Mode:     %s\n", v.Effective.Mode)

	keys := make([]string, 0, len(v.Effective.Days))
	for k := range v.Effective.Days {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tTIME\tTEMP\tHVAC\tFAN\tSWING\tPRESET")
	for _, k := range keys {
		for _, n := range v.Effective.Days[schedule.DayKey(k)] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", k, n.Time, formatTemp(n.Temp),
				orDash(n.HVACMode), orDash(n.FanMode), orDash(n.SwingMode), orDash(n.PresetMode))
		}
	}
	tw.Flush()
}

// parseNodes parses HH:MM=TEMP[/HVAC] arguments.
func parseNodes(args []string) ([]schedule.Node, error) {
	nodes := make([]schedule.Node, 0, len(args))
	for _, arg := range args {
		at, rest, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("node %q: expected HH:MM=TEMP", arg)
		}
		t, err := schedule.ParseTimeOfDay(at)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", arg, err)
		}
		n := schedule.Node{Time: t}

		temp, hvac, _ := strings.Cut(rest, "/")
		if temp != "" && temp != "-" {
			v, err := strconv.ParseFloat(temp, 64)
			if err != nil {
				return nil, fmt.Errorf("node %q: temperature %q is not numeric", arg, temp)
			}
			n.Temp = &v
		}
		if hvac != "" {
			n.HVACMode = &hvac
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// readNodes reads a JSON node list, or "-" for stdin.
func readNodes(path string) ([]schedule.Node, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}
	var nodes []schedule.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse nodes: %w", err)
	}
	return nodes, nil
}
