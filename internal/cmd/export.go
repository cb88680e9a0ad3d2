package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export FILE",
	GroupID: GroupData,
	Short:   "Write the tree, patterns and sessions to a JSON bundle (- for stdout)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			sessions, err := a.rituals.History()
			if err != nil {
				return err
			}
			bundle := a.family.Export(sessions)
			if args[0] == "-" {
				return export.Write(cmd.OutOrStdout(), bundle)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := export.Write(f, bundle); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d members, %d events, %d patterns, %d sessions → %s\n",
				okStyle.Render("✓"), len(bundle.Members), len(bundle.Events), len(bundle.Patterns), len(bundle.Sessions), args[0])
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: GroupData,
	Short:   "Replace the stored data with a JSON bundle (- for stdin)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		bundle, err := export.Read(r)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			if err := a.family.Import(bundle); err != nil {
				return err
			}
			if err := a.store.SaveSessions(bundle.Sessions); err != nil {
				return fmt.Errorf("save sessions: %w", err)
			}
			if a.family.Root() == "" && a.cfg.RootMember() != "" {
				if err := a.cfg.ClearRootMember(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("The root member is not in the bundle; select one with 'linaje root set'."))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s imported %d members, %d events, %d patterns, %d sessions\n",
				okStyle.Render("✓"), len(bundle.Members), len(bundle.Events), len(bundle.Patterns), len(bundle.Sessions))
			return reportRefresh(cmd, a)
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
