package conf

import (
	"fmt"
	"net"
	"strings"

	"github.com/tphakala/withu/internal/audiocore/sources/synth"
	"github.com/tphakala/withu/internal/classifier"
)

// Capture backends.
const (
	BackendMalgo = "malgo"
	BackendFile  = "file"
	BackendSynth = "synth"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct, reporting every
// problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateCaptureSettings(&settings.Capture)...)
	ve.Errors = append(ve.Errors, validateClassifierSettings(&settings.Classifier, &settings.Capture)...)
	ve.Errors = append(ve.Errors, validateAlertSettings(&settings.Alert)...)
	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)

	if settings.EventBus.BufferSize < 1 {
		ve.Errors = append(ve.Errors, "eventbus.buffersize must be at least 1")
	}
	if settings.Telemetry.Sentry.Enabled && settings.Telemetry.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCaptureSettings(c *CaptureSettings) []string {
	var errs []string

	switch c.Backend {
	case BackendMalgo:
	case BackendFile:
		if c.File == "" {
			errs = append(errs, "capture.file is required for the file backend")
		}
	case BackendSynth:
		if _, ok := synth.Patterns[c.Pattern]; !ok {
			errs = append(errs, fmt.Sprintf("capture.pattern %q is not a known synth pattern", c.Pattern))
		}
	default:
		errs = append(errs, fmt.Sprintf("capture.backend %q must be malgo, file or synth", c.Backend))
	}

	if c.SampleRate <= 0 {
		errs = append(errs, "capture.samplerate must be positive")
	}
	if c.FFTSize <= 0 || c.FFTSize&(c.FFTSize-1) != 0 {
		errs = append(errs, "capture.fftsize must be a power of two")
	}
	if c.Smoothing < 0 || c.Smoothing > 1 {
		errs = append(errs, "capture.smoothing must be within [0,1]")
	}
	if c.AnalysisRate < 1 || c.AnalysisRate > 240 {
		errs = append(errs, "capture.analysisrate must be between 1 and 240")
	}
	if c.BufferSeconds < 0 {
		errs = append(errs, "capture.bufferseconds must not be negative")
	}
	return errs
}

func validateClassifierSettings(s *ClassifierSettings, c *CaptureSettings) []string {
	var errs []string

	scheme, err := classifier.ParseBandScheme(s.Scheme)
	if err != nil {
		errs = append(errs, "classifier.scheme must be advanced or simplified")
	} else if c.FFTSize != scheme.FFTSize() {
		errs = append(errs, fmt.Sprintf("capture.fftsize %d does not match the %s scheme (%d)", c.FFTSize, scheme, scheme.FFTSize()))
	}

	if s.Threshold <= 0 || s.Threshold >= 1 {
		errs = append(errs, "classifier.threshold must be within (0,1)")
	}
	if s.CooldownMs < 0 {
		errs = append(errs, "classifier.cooldownms must not be negative")
	}
	for _, p := range s.Calibration.Problems() {
		errs = append(errs, "classifier.calibration."+p)
	}
	for _, name := range s.Enabled {
		cat, ok := classifier.ParseCategory(name)
		if !ok || cat == classifier.CategoryEmergency {
			errs = append(errs, fmt.Sprintf("classifier.enabled contains unknown category %q", name))
		}
	}
	return errs
}

func validateAlertSettings(a *AlertSettings) []string {
	var errs []string
	if a.DurationSeconds < 1 {
		errs = append(errs, "alert.durationseconds must be at least 1")
	}
	if a.HistorySize < 1 || a.HistorySize > 1000 {
		errs = append(errs, "alert.historysize must be between 1 and 1000")
	}
	if a.Sound && strings.TrimSpace(a.Message) == "" {
		errs = append(errs, "alert.message must not be empty when sound is enabled")
	}
	return errs
}

func validateWebServerSettings(w *WebServerSettings) []string {
	if !w.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(w.Listen); err != nil {
		return []string{fmt.Sprintf("webserver.listen %q is not a host:port address", w.Listen)}
	}
	return nil
}
