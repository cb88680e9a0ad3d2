package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/genealogy"
)

var rootMemberCmd = &cobra.Command{
	Use:     "root",
	GroupID: GroupFamily,
	Short:   "Select the member pattern detection walks from",
}

var rootSetCmd = &cobra.Command{
	Use:   "set ID",
	Short: "Set the detection root and run detection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id := genealogy.MemberID(args[0])
			if err := a.family.SetRoot(id); err != nil {
				return err
			}
			if err := a.cfg.SetRootMember(string(id)); err != nil {
				return err
			}
			m, _ := a.family.Member(id)
			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "%s root is %s\n", okStyle.Render("✓"), m.DisplayName())
			}
			return reportRefresh(cmd, a)
		})
	},
}

var rootShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current detection root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			root := a.family.Root()
			m, ok := a.family.Member(root)
			if jsonOutput {
				if !ok {
					return printJSON(cmd.OutOrStdout(), nil)
				}
				return printJSON(cmd.OutOrStdout(), m)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("No root member set."))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", m.DisplayName(), dimStyle.Render(string(m.ID)))
			return nil
		})
	},
}

func init() {
	rootMemberCmd.AddCommand(rootSetCmd, rootShowCmd)
	rootCmd.AddCommand(rootMemberCmd)
}
