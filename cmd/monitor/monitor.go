package monitor

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/withu/cmd/flags"
	"github.com/tphakala/withu/internal/analysis"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/logger"
)

// Command creates the monitor command for live microphone monitoring.
func Command(settings *conf.Settings) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor the microphone for emergency sounds",
		Long:  "Capture audio from a sound card and alert on sirens, fire alarms and smoke detectors until interrupted.",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().StringVar(&device, "device", "", `Capture device name, ID or name fragment ("default" for the system default)`)
	classifierFlags := flags.RegisterClassifier(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("device") {
			settings.Capture.Backend = conf.BackendMalgo
			settings.Capture.Device = device
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

		return analysis.RealtimeMonitoring(cmd.Context(), p, out)
	}

	return cmd
}
