package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
)

var detectCmd = &cobra.Command{
	Use:     "detect",
	GroupID: GroupPatterns,
	Short:   "Run pattern detection from the root member",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			patterns, err := a.family.DetectNow(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), patterns)
			}
			printPatterns(cmd, a, patterns, true)
			return nil
		})
	},
}

var patternsOpts struct {
	resolve    string
	unresolve  string
	unresolved bool
	evidence   bool
}

var patternsCmd = &cobra.Command{
	Use:     "patterns",
	GroupID: GroupPatterns,
	Short:   "Show stored patterns or mark one resolved",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			switch {
			case patternsOpts.resolve != "":
				return markPattern(cmd, a, patternsOpts.resolve, true)
			case patternsOpts.unresolve != "":
				return markPattern(cmd, a, patternsOpts.unresolve, false)
			}
			patterns := a.family.Patterns()
			if patternsOpts.unresolved {
				open := patterns[:0:0]
				for _, p := range patterns {
					if !p.IsResolved {
						open = append(open, p)
					}
				}
				patterns = open
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), patterns)
			}
			printPatterns(cmd, a, patterns, patternsOpts.evidence)
			return nil
		})
	},
}

func markPattern(cmd *cobra.Command, a *app, name string, resolved bool) error {
	p, err := a.family.ResolvePattern(name, resolved)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), p)
	}
	state := "open"
	if p.IsResolved {
		state = "resolved"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s\n", okStyle.Render("✓"), p.Name, state)
	return nil
}

func printPatterns(cmd *cobra.Command, a *app, patterns []pattern.Pattern, evidence bool) {
	out := cmd.OutOrStdout()
	if len(patterns) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No patterns detected."))
		return
	}
	for _, p := range patterns {
		style := scoreStyle(p.Score)
		status := ""
		if p.IsResolved {
			status = okStyle.Render(" resuelto")
		}
		fmt.Fprintf(out, "%s %s %s%s\n", style.Render(fmt.Sprintf("%5.1f", p.Score)), headingStyle.Render(p.Name), dimStyle.Render(string(p.Lineage)), status)
		if p.Description != "" {
			fmt.Fprintf(out, "      %s\n", p.Description)
		}
		if evidence {
			for _, ev := range p.Evidence {
				fmt.Fprintf(out, "      · %s\n", describeEvidence(a, ev))
			}
		}
		for _, rec := range p.Recommendations {
			fmt.Fprintf(out, "      → %s\n", rec)
		}
	}
}

func scoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 60:
		return badStyle
	case score >= 30:
		return warnStyle
	default:
		return dimStyle
	}
}

func describeEvidence(a *app, ev pattern.Evidence) string {
	who := string(ev.MemberID)
	if m, ok := a.family.Member(ev.MemberID); ok {
		who = m.DisplayName()
	}
	ref := string(ev.EventID)
	if ev.Type == pattern.EvidenceRelationship {
		ref = string(ev.RelationshipID)
	}
	parts := []string{fmt.Sprintf("%s gen %d", who, ev.Generation)}
	if ev.Lateral {
		parts = append(parts, "lateral")
	}
	parts = append(parts, fmt.Sprintf("severity %d weight %.2f", ev.Severity, ev.Weight))
	if ev.Note != "" {
		parts = append(parts, ev.Note)
	}
	return fmt.Sprintf("%s (%s)", strings.Join(parts, ", "), dimStyle.Render(ref))
}

var ancestorsDepth int

var ancestorsCmd = &cobra.Command{
	Use:     "ancestors [ID]",
	GroupID: GroupFamily,
	Short:   "List ancestors by generation (defaults to the root member)",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id := a.family.Root()
			if len(args) == 1 {
				id = genealogy.MemberID(args[0])
			}
			if id == "" {
				return fmt.Errorf("no member given and no root set")
			}
			if _, ok := a.family.Member(id); !ok {
				return fmt.Errorf("%w: %s", genealogy.ErrMemberNotFound, id)
			}
			depth := ancestorsDepth
			if depth <= 0 {
				depth = a.cfg.Project.Detection.MaxDepth
			}
			refs := a.family.Ancestors(id, depth)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), refs)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GEN\tID\tNAME\tLINEAGE")
			for _, ref := range refs {
				m, _ := a.family.Member(ref.ID)
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ref.Generation, ref.ID, m.DisplayName(), ref.Lineage)
			}
			return w.Flush()
		})
	},
}

func init() {
	f := patternsCmd.Flags()
	f.StringVar(&patternsOpts.resolve, "resolve", "", "mark the named pattern resolved")
	f.StringVar(&patternsOpts.unresolve, "unresolve", "", "reopen the named pattern")
	f.BoolVar(&patternsOpts.unresolved, "open", false, "only show unresolved patterns")
	f.BoolVar(&patternsOpts.evidence, "evidence", false, "list the evidence behind each pattern")
	patternsCmd.MarkFlagsMutuallyExclusive("resolve", "unresolve")
	ancestorsCmd.Flags().IntVar(&ancestorsDepth, "depth", 0, "generations to walk (config max_depth when 0)")

	rootCmd.AddCommand(detectCmd, patternsCmd, ancestorsCmd)
}
