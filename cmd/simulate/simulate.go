package simulate

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/withu/cmd/flags"
	"github.com/tphakala/withu/internal/analysis"
	"github.com/tphakala/withu/internal/conf"
)

// Command creates the simulate command, which feeds synthetic emergency
// sounds through the pipeline.
func Command(settings *conf.Settings) *cobra.Command {
	opts := analysis.SimulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the classifier on a synthetic sound pattern",
		Long: "Generate a synthetic siren, fire alarm, smoke detector or silence and run it through the pipeline.\n" +
			"By default the pattern is analysed offline; --live plays it in real time with console alerts.",
		Args: cobra.NoArgs,
	}

	cmd.Flags().StringVarP(&opts.Pattern, "pattern", "p", "siren", "Pattern: "+strings.Join(analysis.PatternNames(), ", "))
	cmd.Flags().DurationVar(&opts.Duration, "duration", 10*time.Second, "Length of generated audio; 0 runs until interrupted with --live")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "Pace frames in real time with console alerts")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Oscillator phase seed")
	classifierFlags := flags.RegisterClassifier(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		classifierFlags.Apply(cmd, settings)
		return analysis.Simulate(cmd.Context(), settings, opts, cmd.OutOrStdout())
	}

	return cmd
}
