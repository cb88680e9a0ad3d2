package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/logbook"
)

var journalLines int

var journalCmd = &cobra.Command{
	Use:     "journal",
	GroupID: GroupData,
	Short:   "Show the most recent journal entries",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			entries, total, err := a.journal.Recent(journalLines)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintln(out, dimStyle.Render("The journal is empty."))
				return nil
			}
			for _, e := range entries {
				level := dimStyle.Render(string(e.Level))
				switch e.Level {
				case logbook.LevelWarn:
					level = warnStyle.Render(string(e.Level))
				case logbook.LevelError:
					level = badStyle.Render(string(e.Level))
				}
				stamp := ""
				if !e.Time.IsZero() {
					stamp = e.Time.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%s %-5s %s\n", dimStyle.Render(stamp), level, e.Message)
			}
			if total > len(entries) {
				fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("(%d of %d entries)", len(entries), total)))
			}
			return nil
		})
	},
}

func init() {
	journalCmd.Flags().IntVarP(&journalLines, "lines", "n", 20, "entries to show")
	rootCmd.AddCommand(journalCmd)
}
