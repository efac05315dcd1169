package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/climated/internal/schedule"
)

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage device groups",
	}
	cmd.AddCommand(
		newGroupListCmd(),
		newGroupCreateCmd(),
		newGroupDeleteCmd(),
		newGroupRenameCmd(),
		newGroupAddCmd(),
		newGroupRemoveCmd(),
	)
	return cmd
}

func newGroupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var groups []schedule.Group
			if err := client.Get("/groups", &groups); err != nil {
				return fmt.Errorf("list groups: %w", err)
			}
			return render(cmd, groups, func(w io.Writer) {
				if len(groups) == 0 {
					fmt.Fprintln(w, "No groups found.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tENABLED\tIGNORED\tMODE\tPROFILE\tENTITIES")
				for _, g := range groups {
					profile := g.ActiveProfile
					if profile == "" {
						profile = "-"
					}
					fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\t%s\n",
						g.Name, g.Enabled, g.Ignored, g.Schedule.Mode, profile, strings.Join(g.Entities, ","))
				}
				tw.Flush()
			})
		},
	}
}

func newGroupCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [entity ...]",
		Short: "Create a group seeded with the default schedule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var g schedule.Group
			body := map[string]any{"name": args[0], "entities": args[1:]}
			if err := client.Post("/groups", body, &g); err != nil {
				return fmt.Errorf("create group: %w", err)
			}
			return render(cmd, g, func(w io.Writer) {
				fmt.Fprintf(w, "Group created: %s (%d entities)\n", g.Name, len(g.Entities))
			})
		},
	}
}

func newGroupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete("/groups/"+seg(args[0]), nil); err != nil {
				return fmt.Errorf("delete group: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group deleted: %s\n", args[0])
			return nil
		},
	}
}

func newGroupRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a group, keeping its override and history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var g schedule.Group
			if err := client.Post("/groups/"+seg(args[0])+"/rename", map[string]string{"name": args[1]}, &g); err != nil {
				return fmt.Errorf("rename group: %w", err)
			}
			return render(cmd, g, func(w io.Writer) {
				fmt.Fprintf(w, "Group renamed: %s -> %s\n", args[0], g.Name)
			})
		},
	}
}

func newGroupAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <group> <entity>",
		Short: "Add an entity to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var g schedule.Group
			if err := client.Post("/groups/"+seg(args[0])+"/entities", map[string]string{"entity": args[1]}, &g); err != nil {
				return fmt.Errorf("add entity: %w", err)
			}
			return render(cmd, g, func(w io.Writer) {
				fmt.Fprintf(w, "Group %s: %s\n", g.Name, strings.Join(g.Entities, ", "))
			})
		},
	}
}

func newGroupRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <group> <entity>",
		Short: "Remove an entity from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw map[string]any
			if err := client.Delete("/groups/"+seg(args[0])+"/entities/"+seg(args[1]), &raw); err != nil {
				return fmt.Errorf("remove entity: %w", err)
			}
			return render(cmd, raw, func(w io.Writer) {
				if deleted, ok := raw["deleted"].(string); ok {
					fmt.Fprintf(w, "Group deleted: %s\n", deleted)
					return
				}
				fmt.Fprintf(w, "Removed %s from %s\n", args[1], args[0])
			})
		},
	}
}
