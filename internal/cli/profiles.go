package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/climated/internal/schedule"
)

type groupProfilesView struct {
	ActiveProfile string             `json:"active_profile"`
	Profiles      []schedule.Profile `json:"profiles"`
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage global schedule profiles",
	}
	cmd.AddCommand(
		newProfileListCmd(),
		newProfileCreateCmd(),
		newProfileActivateCmd(),
		newProfileDeleteCmd(),
		newProfileRenameCmd(),
	)
	return cmd
}

func newProfileListCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var view groupProfilesView
			if group != "" {
				if err := client.Get("/groups/"+seg(group)+"/profiles", &view); err != nil {
					return fmt.Errorf("list profiles: %w", err)
				}
			} else if err := client.Get("/profiles", &view.Profiles); err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}
			return render(cmd, view, func(w io.Writer) { printProfiles(w, view) })
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "Mark the profile active on this group")
	return cmd
}

func printProfiles(w io.Writer, view groupProfilesView) {
	if len(view.Profiles) == 0 {
		fmt.Fprintln(w, "No profiles found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tMODE\tORIGIN")
	for _, p := range view.Profiles {
		marker := ""
		if p.Name == view.ActiveProfile {
			marker = "*"
		}
		origin := p.Origin
		if origin == "" {
			origin = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, p.Name, p.Schedule.Mode, origin)
	}
	tw.Flush()
}

func newProfileCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <group> <name>",
		Short: "Save a group's effective schedule as a new profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p schedule.Profile
			if err := client.Post("/groups/"+seg(args[0])+"/profiles", map[string]string{"name": args[1]}, &p); err != nil {
				return fmt.Errorf("create profile: %w", err)
			}
			return render(cmd, p, func(w io.Writer) {
				fmt.Fprintf(w, "Profile created: %s (from %s)\n", p.Name, args[0])
			})
		},
	}
}

func newProfileActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <group> [name]",
		Short: "Select the profile governing a group; omit the name to use the group's own schedule",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			var view groupProfilesView
			if err := client.Put("/groups/"+seg(args[0])+"/active-profile", map[string]string{"name": name}, &view); err != nil {
				return fmt.Errorf("activate profile: %w", err)
			}
			return render(cmd, view, func(w io.Writer) { printProfiles(w, view) })
		},
	}
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile no group has active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete("/profiles/"+seg(args[0]), nil); err != nil {
				return fmt.Errorf("delete profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile deleted: %s\n", args[0])
			return nil
		},
	}
}

func newProfileRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Post("/profiles/"+seg(args[0])+"/rename", map[string]string{"name": args[1]}, nil); err != nil {
				return fmt.Errorf("rename profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile renamed: %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}
