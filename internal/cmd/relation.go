package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/genealogy"
)

var relationCmd = &cobra.Command{
	Use:     "relation",
	GroupID: GroupFamily,
	Short:   "Connect members with typed relationships",
}

var relationAddOpts struct {
	id    string
	start string
	end   string
	notes string
}

func relationTypeNames() string {
	names := make([]string, 0, len(genealogy.RelationshipTypes()))
	for _, t := range genealogy.RelationshipTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, "|")
}

var relationAddCmd = &cobra.Command{
	Use:   "add TYPE FROM TO",
	Short: "Add a relationship; for lineal types FROM is the elder",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := genealogy.RelationshipType(strings.ToLower(args[0]))
		if !kind.Valid() {
			return fmt.Errorf("unknown relationship type %q (want %s)", args[0], relationTypeNames())
		}
		start, err := parseDate(relationAddOpts.start)
		if err != nil {
			return err
		}
		end, err := parseDate(relationAddOpts.end)
		if err != nil {
			return err
		}
		rel := genealogy.Relationship{
			ID:        genealogy.RelationshipID(relationAddOpts.id),
			Type:      kind,
			From:      genealogy.MemberID(args[1]),
			To:        genealogy.MemberID(args[2]),
			StartDate: start,
			EndDate:   end,
			Notes:     relationAddOpts.notes,
		}
		return withApp(func(a *app) error {
			added, err := a.family.AddRelationship(rel)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), added)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s → %s %s\n", okStyle.Render("✓"),
				added.Type, added.From, added.To, dimStyle.Render(string(added.ID)))
			return reportRefresh(cmd, a)
		})
	},
}

var relationRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a relationship",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.family.RemoveRelationship(genealogy.RelationshipID(args[0])); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s\n", okStyle.Render("✓"), args[0])
			}
			return reportRefresh(cmd, a)
		})
	},
}

var relationListCmd = &cobra.Command{
	Use:   "list MEMBER",
	Short: "List the relationships touching a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			rels := a.family.RelationshipsOf(genealogy.MemberID(args[0]))
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), rels)
			}
			for _, r := range rels {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s %s → %s\n", dimStyle.Render(string(r.ID)), r.Type, r.From, r.To)
			}
			return nil
		})
	},
}

func init() {
	f := relationAddCmd.Flags()
	f.StringVar(&relationAddOpts.id, "id", "", "explicit relationship ID (generated when empty)")
	f.StringVar(&relationAddOpts.start, "start", "", "start date YYYY-MM-DD")
	f.StringVar(&relationAddOpts.end, "end", "", "end date YYYY-MM-DD")
	f.StringVar(&relationAddOpts.notes, "notes", "", "free-form notes")

	relationCmd.AddCommand(relationAddCmd, relationRemoveCmd, relationListCmd)
	rootCmd.AddCommand(relationCmd)
}
