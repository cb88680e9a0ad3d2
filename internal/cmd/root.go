// Package cmd provides the CLI commands for linaje.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var (
	projectDir string
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:     "linaje",
	Short:   "Family pattern detection and spoken healing rituals",
	Version: Version,
	Long: `linaje keeps a family tree with the events that marked it, detects
patterns that repeat across generations and walks you through spoken
rituals whose key phrases are validated against what you actually said.

Everything lives in a .linaje/ folder inside the project directory.`,
	SilenceUsage: true,
}

// Command group IDs used to organize help output.
const (
	GroupFamily   = "family"
	GroupPatterns = "patterns"
	GroupRituals  = "rituals"
	GroupData     = "data"
)

func init() {
	cwd, _ := os.Getwd()
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", cwd, "project directory holding .linaje/")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "mirror warnings to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupFamily, Title: "Family tree:"},
		&cobra.Group{ID: GroupPatterns, Title: "Patterns:"},
		&cobra.Group{ID: GroupRituals, Title: "Rituals:"},
		&cobra.Group{ID: GroupData, Title: "Data:"},
	)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return 1
	}
	return 0
}

// exitError ends the process with a specific code after output was printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
