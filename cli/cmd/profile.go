package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/accesslog/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileSetCmd = &cobra.Command{
	Use:     "set <name> <server-url>",
	Short:   "Create or update a profile and make it current",
	Example: `  accessctl profile set prod https://access.example.com`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.SaveProfile(args[0], args[1]); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		output.Success("Profile '%s' saved and selected", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		return output.Print(outputFormat(cmd), cfg.Profiles, func() {
			table := output.NewTable([]string{"", "NAME", "SERVER"})
			for _, name := range names {
				marker := ""
				if name == cfg.CurrentProfile {
					marker = "*"
				}
				table.AddRow([]string{marker, name, cfg.Profiles[name].ServerURL})
			}
			table.Render()
		})
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveProfile(args[0]); err != nil {
			return err
		}
		output.Success("Profile '%s' removed", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd, profileListCmd, profileRemoveCmd)
}
