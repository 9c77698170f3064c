package analyze

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/withu/cmd/flags"
	"github.com/tphakala/withu/internal/analysis"
	"github.com/tphakala/withu/internal/conf"
)

// Command creates the analyze command for recorded audio.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [input.wav]",
		Short: "Analyze an audio file",
		Long:  "Run the classifier over a WAV recording as fast as possible and list the detections with their offsets.",
		Args:  cobra.ExactArgs(1),
	}

	classifierFlags := flags.RegisterClassifier(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		classifierFlags.Apply(cmd, settings)
		_, err := analysis.FileAnalysis(cmd.Context(), settings, args[0], cmd.OutOrStdout())
		return err
	}

	return cmd
}
