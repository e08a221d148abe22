package cmd

import (
	"fmt"
	"strings"

	"nanoclaw-sidecar/config"
	"nanoclaw-sidecar/groups"

	"github.com/spf13/cobra"
)

// groupEntry is one row of 'groups list'.
type groupEntry struct {
	Name    string `json:"name"`
	JID     string `json:"jid"`
	Default bool   `json:"default"`
}

// newGroupsCmd creates the 'groups' command group
func newGroupsCmd() *cobra.Command {
	groupsCmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect the group name to WhatsApp JID mapping",
	}
	groupsCmd.AddCommand(newGroupsListCmd())
	return groupsCmd
}

// newGroupsListCmd creates the 'groups list' subcommand
func newGroupsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured groups",
		Long:    "Load groups_config the way the server does and print every group with its JID.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			dir, err := groups.Load(cfg.GroupsConfig)
			if err != nil {
				return fmt.Errorf("failed to load groups config: %w", err)
			}

			entries := make([]groupEntry, 0, dir.Len())
			for _, name := range dir.Names() {
				jid, _ := dir.Lookup(name)
				entries = append(entries, groupEntry{Name: name, JID: jid, Default: name == cfg.DefaultGroup})
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return outputAsJSON(out, entries)
			}

			if len(entries) == 0 {
				warningColor.Fprintf(out, "No groups configured in %s\n", cfg.GroupsConfig)
				return nil
			}

			headerColor.Fprintln(out, "GROUPS")
			headerColor.Fprintln(out, strings.Repeat("=", 72))
			fmt.Fprintf(out, "%-3s %-24s %s\n", "", "Name", "JID")
			fmt.Fprintln(out, strings.Repeat("-", 72))
			for _, e := range entries {
				marker := ""
				if e.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%-3s %-24s %s\n", marker, e.Name, e.JID)
			}
			fmt.Fprintln(out, strings.Repeat("=", 72))

			if !quiet {
				infoColor.Fprintf(out, "%d group(s) from %s\n", len(entries), cfg.GroupsConfig)
				if cfg.DefaultGroup != "" {
					if _, ok := dir.Lookup(cfg.DefaultGroup); !ok {
						warningColor.Fprintf(out, "Default group %q is not configured\n", cfg.DefaultGroup)
					}
				}
			}
			return nil
		},
	}
}
