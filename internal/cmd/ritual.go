package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/linaje/internal/bridge"
	"github.com/kingrea/linaje/internal/ritual"
	"github.com/kingrea/linaje/internal/tui"
)

var ritualCmd = &cobra.Command{
	Use:     "ritual",
	GroupID: GroupRituals,
	Short:   "List, run and review rituals",
}

var ritualListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available ritual definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			defs := a.rituals.Library().List()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), defs)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tNAME")
			for _, def := range defs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.ID, def.Kind, def.Name)
			}
			return w.Flush()
		})
	},
}

var ritualRunNoBridge bool

var ritualRunCmd = &cobra.Command{
	Use:   "run ID",
	Short: "Walk through a ritual interactively",
	Long: `Walk through a ritual in the terminal. Type each block, or speak it
into a client that posts transcripts to the local bridge.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			m, err := a.rituals.Start(args[0])
			if err != nil {
				return err
			}
			opts := []tui.RunnerOption{tui.WithFinisher(a.rituals.Finish)}

			if !ritualRunNoBridge {
				router := bridge.NewRouter(bridge.RouterWithLogger(a.logger.Named("router")))
				server := bridge.NewServer(bridge.SettingsFromConfig(a.cfg),
					bridge.WithProcessor(router),
					bridge.WithMetrics(a.metrics),
					bridge.WithLogger(a.logger.Named("bridge")))
				switch err := server.Start(cmd.Context()); {
				case errors.Is(err, bridge.ErrDisabled):
				case err != nil:
					return err
				default:
					defer shutdownBridge(a, server)
					sub := router.Subscribe(m.Session().ID)
					defer sub.Close()
					opts = append(opts, tui.WithTranscripts(sub.Transcripts))
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s/transcripts session_id=%s\n",
						dimStyle.Render("bridge:"), server.BaseURL(), m.Session().ID)
				}
			}

			runner := tui.NewRunner(m, opts...)
			if _, err := tea.NewProgram(runner, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			session, ok := runner.Session()
			if !ok {
				// The program ended without the runner finishing; keep what was validated.
				if !m.Session().IsFinalized() {
					if _, err := m.Abandon(); err != nil {
						return err
					}
				}
				if session, err = a.rituals.Finish(m); err != nil {
					return err
				}
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), session)
			}
			printSession(cmd, session)
			return nil
		})
	},
}

func shutdownBridge(a *app, server *bridge.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Warn("bridge shutdown failed", zap.Error(err))
	}
}

var ritualHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished and abandoned sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			sessions, err := a.rituals.History()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No sessions yet."))
				return nil
			}
			for _, s := range sessions {
				printSession(cmd, s)
			}
			return nil
		})
	},
}

var ritualShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Show one session with its block validations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			s, err := a.rituals.Session(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), s)
			}
			printSession(cmd, s)
			for _, rec := range s.Records {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s/%s ", rec.Phase, rec.BlockID)
				printValidation(cmd.OutOrStdout(), rec.Validation)
			}
			return nil
		})
	},
}

func printSession(cmd *cobra.Command, s ritual.Session) {
	out := cmd.OutOrStdout()
	state := okStyle.Render(s.State.Label())
	if s.State == ritual.StateAbandoned {
		state = warnStyle.Render(s.State.Label())
	}
	fmt.Fprintf(out, "%s %s %s %s\n", dimStyle.Render(s.StartedAt.Local().Format("2006-01-02 15:04")), s.RitualID, state, dimStyle.Render(s.ID))
	if s.IntensityBefore != nil && s.IntensityAfter != nil {
		fmt.Fprintf(out, "  Intensidad: %d → %d\n", *s.IntensityBefore, *s.IntensityAfter)
	}
	if s.Vow != nil {
		fmt.Fprintf(out, "  Compromiso (%s, %d días): %s\n", s.Vow.Category, s.Vow.DurationDays, s.Vow.Description)
	}
}

func init() {
	ritualRunCmd.Flags().BoolVar(&ritualRunNoBridge, "no-bridge", false, "do not start the transcript bridge")
	ritualCmd.AddCommand(ritualListCmd, ritualRunCmd, ritualHistoryCmd, ritualShowCmd)
	rootCmd.AddCommand(ritualCmd)
}
