package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/genealogy"
)

var memberCmd = &cobra.Command{
	Use:     "member",
	GroupID: GroupFamily,
	Short:   "Add, list, find and remove family members",
}

var memberAddOpts struct {
	id         string
	familyName string
	sex        string
	born       string
	died       string
	place      string
	tags       []string
	notes      string
}

var memberAddCmd = &cobra.Command{
	Use:   "add GIVEN_NAME",
	Short: "Add a family member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		born, err := parseDate(memberAddOpts.born)
		if err != nil {
			return err
		}
		died, err := parseDate(memberAddOpts.died)
		if err != nil {
			return err
		}
		m := genealogy.FamilyMember{
			ID:         genealogy.MemberID(memberAddOpts.id),
			GivenName:  args[0],
			FamilyName: memberAddOpts.familyName,
			Sex:        genealogy.ParseSex(memberAddOpts.sex),
			BirthDate:  born,
			DeathDate:  died,
			IsAlive:    died == nil,
			BirthPlace: memberAddOpts.place,
			Tags:       memberAddOpts.tags,
			Notes:      memberAddOpts.notes,
		}
		return withApp(func(a *app) error {
			added, err := a.family.AddMember(m)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), added)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okStyle.Render("✓"), added.DisplayName(), dimStyle.Render(string(added.ID)))
			return nil
		})
	},
}

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every member",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			members := a.family.Members()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), members)
			}
			printMembers(cmd, members, a.family.Root())
			return nil
		})
	},
}

var memberFindLimit int

var memberFindCmd = &cobra.Command{
	Use:   "find QUERY",
	Short: "Fuzzy-search members by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			members := a.family.FindMembers(strings.Join(args, " "), memberFindLimit)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), members)
			}
			if len(members) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No matches."))
				return nil
			}
			printMembers(cmd, members, a.family.Root())
			return nil
		})
	},
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a member with its relationships and events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			wasRoot := a.family.Root() == genealogy.MemberID(args[0])
			report, err := a.family.RemoveMember(genealogy.MemberID(args[0]))
			if err != nil {
				return err
			}
			if wasRoot {
				if err := a.cfg.ClearRootMember(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("The root member was removed; select a new one with 'linaje root set'."))
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s (%d relationships, %d events)\n",
				okStyle.Render("✓"), report.Member, len(report.Relationships), len(report.Events))
			return reportRefresh(cmd, a)
		})
	},
}

func printMembers(cmd *cobra.Command, members []genealogy.FamilyMember, root genealogy.MemberID) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSEX\tBORN\tDIED\tTAGS")
	for _, m := range members {
		name := m.DisplayName()
		if m.ID == root {
			name += " ★"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, name, m.Sex, formatDate(m.BirthDate), formatDate(m.DeathDate), strings.Join(m.Tags, ","))
	}
	_ = w.Flush()
}

// reportRefresh re-runs detection after an edit and prints a one-line
// summary. Without a root there is nothing to detect yet.
func reportRefresh(cmd *cobra.Command, a *app) error {
	patterns, ran, err := a.refresh(cmd.Context())
	if err != nil {
		return err
	}
	if ran && !jsonOutput {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("%d patterns detected", len(patterns))))
	}
	return nil
}

func init() {
	f := memberAddCmd.Flags()
	f.StringVar(&memberAddOpts.id, "id", "", "explicit member ID (generated when empty)")
	f.StringVar(&memberAddOpts.familyName, "family-name", "", "family name")
	f.StringVar(&memberAddOpts.sex, "sex", "", "male|female (hombre|mujer also accepted)")
	f.StringVar(&memberAddOpts.born, "born", "", "birth date YYYY-MM-DD")
	f.StringVar(&memberAddOpts.died, "died", "", "death date YYYY-MM-DD")
	f.StringVar(&memberAddOpts.place, "place", "", "birth place")
	f.StringSliceVar(&memberAddOpts.tags, "tag", nil, "tag (repeatable)")
	f.StringVar(&memberAddOpts.notes, "notes", "", "free-form notes")
	memberFindCmd.Flags().IntVar(&memberFindLimit, "limit", 10, "maximum matches")

	memberCmd.AddCommand(memberAddCmd, memberListCmd, memberFindCmd, memberRemoveCmd)
	rootCmd.AddCommand(memberCmd)
}
