package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/genealogy"
)

var eventCmd = &cobra.Command{
	Use:     "event",
	GroupID: GroupFamily,
	Short:   "Record life events on members or whole lineages",
}

var eventAddOpts struct {
	id       string
	member   string
	lineage  string
	severity int
	secret   bool
	date     string
	location string
	notes    string
}

func eventKindNames() string {
	names := make([]string, 0, len(genealogy.EventKinds()))
	for _, k := range genealogy.EventKinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, "|")
}

var eventAddCmd = &cobra.Command{
	Use:   "add KIND",
	Short: "Add an event to a member (--member) or a lineage (--lineage)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := genealogy.EventKind(strings.ToLower(args[0]))
		if !kind.Valid() {
			return fmt.Errorf("unknown event kind %q (want %s)", args[0], eventKindNames())
		}
		if (eventAddOpts.member == "") == (eventAddOpts.lineage == "") {
			return errors.New("exactly one of --member or --lineage is required")
		}
		lineage := genealogy.Lineage(strings.ToLower(eventAddOpts.lineage))
		if eventAddOpts.lineage != "" && (!lineage.Valid() || lineage == genealogy.LineageUnknown) {
			return fmt.Errorf("invalid lineage %q (want paternal|maternal|both)", eventAddOpts.lineage)
		}
		date, err := parseDate(eventAddOpts.date)
		if err != nil {
			return err
		}
		ev := genealogy.FamilyEvent{
			ID:       genealogy.EventID(eventAddOpts.id),
			MemberID: genealogy.MemberID(eventAddOpts.member),
			Lineage:  lineage,
			Kind:     kind,
			Severity: eventAddOpts.severity,
			IsSecret: eventAddOpts.secret,
			Date:     date,
			Location: eventAddOpts.location,
			Notes:    eventAddOpts.notes,
		}
		return withApp(func(a *app) error {
			added, err := a.family.AddEvent(ev)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), added)
			}
			owner := string(added.MemberID)
			if added.IsLineageWide() {
				owner = string(added.Lineage) + " lineage"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s on %s (severity %d) %s\n", okStyle.Render("✓"),
				added.Kind, owner, added.Severity, dimStyle.Render(string(added.ID)))
			return reportRefresh(cmd, a)
		})
	},
}

var eventRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.family.RemoveEvent(genealogy.EventID(args[0])); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s\n", okStyle.Render("✓"), args[0])
			}
			return reportRefresh(cmd, a)
		})
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list MEMBER",
	Short: "List the events recorded on a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			events := a.family.EventsOf(genealogy.MemberID(args[0]))
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), events)
			}
			for _, e := range events {
				secret := ""
				if e.IsSecret {
					secret = warnStyle.Render(" secret")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s severity %d %s%s\n",
					dimStyle.Render(string(e.ID)), e.Kind, e.Severity, formatDate(e.Date), secret)
			}
			return nil
		})
	},
}

func init() {
	f := eventAddCmd.Flags()
	f.StringVar(&eventAddOpts.id, "id", "", "explicit event ID (generated when empty)")
	f.StringVar(&eventAddOpts.member, "member", "", "member the event happened to")
	f.StringVar(&eventAddOpts.lineage, "lineage", "", "paternal|maternal|both for lineage-wide events")
	f.IntVar(&eventAddOpts.severity, "severity", 0, "severity 1-5 (kind default when 0)")
	f.BoolVar(&eventAddOpts.secret, "secret", false, "mark the event as a family secret")
	f.StringVar(&eventAddOpts.date, "date", "", "date YYYY-MM-DD")
	f.StringVar(&eventAddOpts.location, "location", "", "where it happened")
	f.StringVar(&eventAddOpts.notes, "notes", "", "free-form notes")

	eventCmd.AddCommand(eventAddCmd, eventRemoveCmd, eventListCmd)
	rootCmd.AddCommand(eventCmd)
}
