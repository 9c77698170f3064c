package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	s := Defaults()
	require.NoError(t, ValidateSettings(s))

	assert.Equal(t, "withu", s.Main.Name)
	assert.Equal(t, BackendMalgo, s.Capture.Backend)
	assert.Equal(t, 44100, s.Capture.SampleRate)
	assert.Equal(t, 4096, s.Capture.FFTSize)
	assert.InDelta(t, 0.6, s.Classifier.Threshold, 1e-9)
	assert.Equal(t, 5000, s.Classifier.CooldownMs)
	assert.Equal(t, 30, s.Alert.DurationSeconds)
	assert.Equal(t, 10, s.Alert.HistorySize)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	assert.Equal(t, classifier.DefaultCalibration(), s.Classifier.Calibration)
	assert.Equal(t, classifier.DefaultCalibration(), s.ClassifierConfig().Calibration)
}

func TestLoadCalibrationOverride(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
classifier:
  calibration:
    firenorm: 180
    peakminspacing: 12
    peakminamplitude: 90
`)

	s, err := Load(path)
	require.NoError(t, err)

	cal := s.ClassifierConfig().Calibration
	assert.InDelta(t, 180.0, cal.FireNorm, 1e-9)
	assert.Equal(t, 12, cal.PeakMinSpacing)
	assert.Equal(t, uint8(90), cal.PeakMinAmplitude)

	def := classifier.DefaultCalibration()
	assert.InDelta(t, def.SmokeNorm, cal.SmokeNorm, 1e-9, "unset keys keep defaults")
	assert.InDelta(t, def.SirenPatternShare, cal.SirenPatternShare, 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
capture:
  backend: synth
  pattern: fire
  fftsize: 2048
classifier:
  scheme: simplified
  threshold: 0.7
  cooldownms: 2000
  enabled: [fire_alarm, smoke_detector]
alert:
  sound: false
webserver:
  listen: 0.0.0.0:9090
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Same(t, s, GetSettings())
	assert.Equal(t, path, s.ConfigFile)

	assert.Equal(t, BackendSynth, s.Capture.Backend)
	assert.Equal(t, 44100, s.Capture.SampleRate, "unset keys keep defaults")
	assert.Equal(t, "0.0.0.0:9090", s.WebServer.Listen)

	cfg := s.ClassifierConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, classifier.SchemeSimplified, cfg.Scheme)
	assert.Equal(t, 2048, cfg.FFTSize)
	assert.Equal(t, 2*time.Second, cfg.Cooldown)
	assert.InDelta(t, 0.7, cfg.DetectionThreshold, 1e-9)
	assert.Equal(t, []classifier.SoundCategory{classifier.CategoryFireAlarm, classifier.CategorySmokeDetector}, cfg.Enabled)

	ac := s.AlertConfig()
	require.NoError(t, ac.Validate())
	assert.False(t, ac.Sound)
	assert.Equal(t, 30*time.Second, ac.Duration)

	c := s.Constraints()
	require.NoError(t, c.Validate())
	assert.Equal(t, 1, c.Channels)
	assert.Equal(t, 60, c.AnalysisRate)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "classifier:\n  threshold: 0.7\n")
	t.Setenv("WITHU_CLASSIFIER_THRESHOLD", "0.8")
	t.Setenv("WITHU_CAPTURE_DEVICE", "USB Audio")

	s, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, s.Classifier.Threshold, 1e-9)
	assert.Equal(t, "USB Audio", s.Capture.Device)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadInvalidSettings(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "classifier:\n  threshold: 1.5\n")
	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 1)
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"unknown backend", func(s *Settings) { s.Capture.Backend = "pulse" }, "capture.backend"},
		{"file backend without path", func(s *Settings) { s.Capture.Backend = BackendFile }, "capture.file"},
		{"unknown synth pattern", func(s *Settings) { s.Capture.Backend = BackendSynth; s.Capture.Pattern = "doorbell" }, "capture.pattern"},
		{"fft not power of two", func(s *Settings) { s.Capture.FFTSize = 3000 }, "power of two"},
		{"fft scheme mismatch", func(s *Settings) { s.Capture.FFTSize = 2048 }, "does not match"},
		{"analysis rate too high", func(s *Settings) { s.Capture.AnalysisRate = 500 }, "analysisrate"},
		{"zero sample rate", func(s *Settings) { s.Capture.SampleRate = 0 }, "samplerate"},
		{"bad scheme", func(s *Settings) { s.Classifier.Scheme = "neural" }, "classifier.scheme"},
		{"threshold zero", func(s *Settings) { s.Classifier.Threshold = 0 }, "classifier.threshold"},
		{"negative cooldown", func(s *Settings) { s.Classifier.CooldownMs = -1 }, "cooldownms"},
		{"unknown category", func(s *Settings) { s.Classifier.Enabled = []string{"doorbell"} }, "classifier.enabled"},
		{"emergency not matchable", func(s *Settings) { s.Classifier.Enabled = []string{"emergency"} }, "classifier.enabled"},
		{"history too large", func(s *Settings) { s.Alert.HistorySize = 5000 }, "historysize"},
		{"empty message", func(s *Settings) { s.Alert.Message = " " }, "alert.message"},
		{"bad listen address", func(s *Settings) { s.WebServer.Listen = "localhost" }, "webserver.listen"},
		{"sentry without dsn", func(s *Settings) { s.Telemetry.Sentry.Enabled = true }, "sentry"},
		{"empty event bus", func(s *Settings) { s.EventBus.BufferSize = 0 }, "eventbus"},
		{"zero calibration norm", func(s *Settings) { s.Classifier.Calibration.FireNorm = 0 }, "classifier.calibration.firenorm"},
		{"calibration share above one", func(s *Settings) { s.Classifier.Calibration.SirenSweepShare = 1.5 }, "classifier.calibration.sirensweepshare"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := Defaults()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := Defaults()
	s.Classifier.Threshold = 2
	s.Alert.HistorySize = 0
	s.Capture.SampleRate = -1

	err := ValidateSettings(s)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	s := Defaults()
	s.Capture.Device = "USB Audio"
	s.ApplyClassifierConfig(classifier.Config{
		DetectionThreshold: 0.75,
		Cooldown:           3 * time.Second,
		Enabled:            []classifier.SoundCategory{classifier.CategorySiren},
	})
	require.NoError(t, SaveYAMLConfig(path, s))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "USB Audio", loaded.Capture.Device)
	assert.InDelta(t, 0.75, loaded.Classifier.Threshold, 1e-9)
	assert.Equal(t, 3000, loaded.Classifier.CooldownMs)
	assert.Equal(t, []string{"siren"}, loaded.Classifier.Enabled)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is cleaned up")
}
