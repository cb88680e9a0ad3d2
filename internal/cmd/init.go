package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: GroupData,
	Short:   "Create the .linaje directory and default config",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitLinajeDir(projectDir); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		cfg, err := config.NewConfig(projectDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("✓"), cfg.LinajeProjectDir)
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("Next: linaje member add <name> --sex female"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
