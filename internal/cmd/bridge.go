package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/linaje/internal/bridge"
)

var bridgeCmd = &cobra.Command{
	Use:     "bridge",
	GroupID: GroupRituals,
	Short:   "Run the local transcript bridge",
}

var bridgeServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept transcripts over HTTP until interrupted",
	Long: `Serve /health, /transcripts and /metrics on the configured address.
Accepted transcripts are logged; 'linaje ritual run' starts its own bridge
and feeds them into the running ritual.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := a.logger.Named("bridge")
			router := bridge.NewRouter(bridge.RouterWithLogger(a.logger.Named("router")))
			processor := bridge.ProcessorFunc(func(t bridge.Transcript) error {
				if err := router.HandleTranscript(t); err != nil {
					return err
				}
				logger.Info("transcript accepted",
					zap.String("session", t.SessionID),
					zap.String("block", t.BlockID),
					zap.Int("bytes", len(t.Text)),
					zap.Int("pending", router.Pending(t.SessionID)))
				return nil
			})
			settings := bridge.SettingsFromConfig(a.cfg)
			settings.Enabled = true
			server := bridge.NewServer(settings,
				bridge.WithProcessor(processor),
				bridge.WithMetrics(a.metrics),
				bridge.WithLogger(logger))
			if err := server.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (Ctrl+C to stop)\n", okStyle.Render("bridge listening on"), server.BaseURL())
			<-ctx.Done()
			shutdownBridge(a, server)
			return nil
		})
	},
}

func init() {
	bridgeCmd.AddCommand(bridgeServeCmd)
	rootCmd.AddCommand(bridgeCmd)
}
