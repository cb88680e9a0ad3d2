// linaje keeps a family tree, detects patterns that repeat across
// generations and runs spoken healing rituals.
//
// Usage:
//
//	linaje <command> [arguments]
//
// Common commands:
//
//	linaje init                  Create .linaje/ in the current directory
//	linaje member add NAME       Add a family member
//	linaje relation add parent A B
//	linaje detect                Detect patterns from the root member
//	linaje ritual run ID         Run a ritual interactively
package main

import (
	"os"

	"github.com/kingrea/linaje/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
