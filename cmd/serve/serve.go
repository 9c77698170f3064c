package serve

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/withu/cmd/flags"
	"github.com/tphakala/withu/internal/analysis"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/logger"
)

// Command creates the serve command running the HTTP control surface.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		listen      string
		noAutoStart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control surface and monitor",
		Long:  "Start monitoring and expose status, configuration, alerts, a live sound level stream and Prometheus metrics over HTTP.",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (host:port), overrides webserver.listen")
	cmd.Flags().BoolVar(&noAutoStart, "no-autostart", false, "Wait for POST /api/v1/monitor/start before monitoring")
	classifierFlags := flags.RegisterClassifier(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			settings.WebServer.Enabled = true
			settings.WebServer.Listen = listen
		}
		classifierFlags.Apply(cmd, settings)

		out := cmd.OutOrStdout()
		p, err := analysis.NewConsolePipeline(settings, nil, out)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				logger.Global().Module("main").Warn("failed to close pipeline", logger.Error(err))
			}
		}()

		return analysis.Serve(cmd.Context(), p, analysis.ServeOptions{
			ConfigPath: settings.ConfigFile,
			AutoStart:  !noAutoStart,
		}, out)
	}

	return cmd
}
