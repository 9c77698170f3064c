package conf

import (
	"time"

	"github.com/tphakala/withu/internal/alert"
	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/classifier"
)

// ClassifierConfig maps the persisted settings onto classifier.Config.
// Invalid values are carried over as-is so Validate reports them.
func (s *Settings) ClassifierConfig() classifier.Config {
	cfg := classifier.DefaultConfig()
	cfg.Scheme = classifier.BandScheme(s.Classifier.Scheme)
	cfg.DetectionThreshold = s.Classifier.Threshold
	cfg.Cooldown = time.Duration(s.Classifier.CooldownMs) * time.Millisecond
	cfg.SampleRate = s.Capture.SampleRate
	cfg.FFTSize = s.Capture.FFTSize
	cfg.SmoothingTimeConstant = s.Capture.Smoothing
	cfg.Calibration = s.Classifier.Calibration

	cfg.Enabled = nil
	for _, name := range s.Classifier.Enabled {
		cfg.Enabled = append(cfg.Enabled, classifier.SoundCategory(name))
	}
	return cfg
}

// Constraints returns the capture constraints for the configured source.
func (s *Settings) Constraints() audiocore.Constraints {
	return audiocore.Constraints{
		SampleRate:            s.Capture.SampleRate,
		Channels:              1,
		FFTSize:               s.Capture.FFTSize,
		SmoothingTimeConstant: s.Capture.Smoothing,
		AnalysisRate:          s.Capture.AnalysisRate,
		EchoCancellation:      s.Capture.EchoCancellation,
		NoiseSuppression:      s.Capture.NoiseSuppression,
	}
}

// AlertConfig maps the persisted settings onto alert.Config. Pattern
// timings keep their built-in values.
func (s *Settings) AlertConfig() alert.Config {
	cfg := alert.DefaultConfig()
	cfg.AutoAlert = s.Alert.AutoAlert
	cfg.Vibration = s.Alert.Vibration
	cfg.Flash = s.Alert.Flash
	cfg.Sound = s.Alert.Sound
	if s.Alert.Message != "" {
		cfg.Message = s.Alert.Message
	}
	cfg.Duration = time.Duration(s.Alert.DurationSeconds) * time.Second
	cfg.HistorySize = s.Alert.HistorySize
	return cfg
}

// ApplyClassifierConfig stores runtime classifier changes back into the
// settings so they can be saved.
func (s *Settings) ApplyClassifierConfig(cfg classifier.Config) {
	s.Classifier.Threshold = cfg.DetectionThreshold
	s.Classifier.CooldownMs = int(cfg.Cooldown / time.Millisecond)
	s.Classifier.Enabled = make([]string, 0, len(cfg.Enabled))
	for _, cat := range cfg.Enabled {
		s.Classifier.Enabled = append(s.Classifier.Enabled, string(cat))
	}
}
