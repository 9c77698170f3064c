// Package flags holds command line flags shared by the analysis commands.
package flags

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/conf"
)

// Classifier are the detection tuning flags. Only flags set on the command
// line override the loaded settings.
type Classifier struct {
	threshold float64
	cooldown  time.Duration
	scheme    string
	enabled   []string
	rate      int
}

// RegisterClassifier adds the classifier flags to cmd.
func RegisterClassifier(cmd *cobra.Command) *Classifier {
	d := conf.Defaults()
	c := &Classifier{}
	fs := cmd.Flags()
	fs.Float64VarP(&c.threshold, "threshold", "t", d.Classifier.Threshold, "Detection confidence threshold, exclusive, within (0,1)")
	fs.DurationVar(&c.cooldown, "cooldown", time.Duration(d.Classifier.CooldownMs)*time.Millisecond, "Minimum time between detections")
	fs.StringVar(&c.scheme, "scheme", d.Classifier.Scheme, "Band scheme: advanced or simplified")
	fs.StringSliceVar(&c.enabled, "enable", nil, "Categories to detect (siren, fire_alarm, smoke_detector); default all")
	fs.IntVar(&c.rate, "rate", d.Capture.AnalysisRate, "Analysis frames per second")
	return c
}

// Apply copies the flags the user set into settings. Choosing a scheme also
// selects its FFT size.
func (c *Classifier) Apply(cmd *cobra.Command, settings *conf.Settings) {
	fs := cmd.Flags()
	if fs.Changed("threshold") {
		settings.Classifier.Threshold = c.threshold
	}
	if fs.Changed("cooldown") {
		settings.Classifier.CooldownMs = int(c.cooldown / time.Millisecond)
	}
	if fs.Changed("scheme") {
		settings.Classifier.Scheme = c.scheme
		if scheme, err := classifier.ParseBandScheme(c.scheme); err == nil {
			settings.Capture.FFTSize = scheme.FFTSize()
		}
	}
	if fs.Changed("enable") {
		settings.Classifier.Enabled = append([]string(nil), c.enabled...)
	}
	if fs.Changed("rate") {
		settings.Capture.AnalysisRate = c.rate
	}
}
