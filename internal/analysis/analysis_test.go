package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/audiocore/sources/synth"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func synthSettings(pattern string) *conf.Settings {
	s := conf.Defaults()
	s.Capture.Backend = conf.BackendSynth
	s.Capture.Pattern = pattern
	s.Telemetry.Prometheus.Enabled = false
	return s
}

func TestSimulateOfflineFireAlarm(t *testing.T) {
	var out testutil.SyncBuffer
	err := Simulate(t.Context(), synthSettings("fire"), SimulateOptions{
		Pattern:  "fire",
		Duration: 3 * time.Second,
	}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Simulating fire for 3s")
	assert.Contains(t, text, "fire_alarm")
	assert.Contains(t, text, "1 detections in")
}

func TestRunOfflineReportsStreamOffsets(t *testing.T) {
	s := synthSettings("smoke")
	factory, err := SourceFactory(s, synth.WithDuration(12*time.Second))
	require.NoError(t, err)

	report, err := RunOffline(t.Context(), s, factory, "synth:smoke")
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(report.Detections), 2)
	assert.Equal(t, len(report.Detections), report.Summary.Detections)
	for i, ev := range report.Detections {
		assert.Equal(t, classifier.CategorySmokeDetector, ev.Type)
		off := report.Offset(ev)
		assert.GreaterOrEqual(t, off, time.Duration(0))
		assert.Less(t, off, 12*time.Second)
		if i > 0 {
			gap := off - report.Offset(report.Detections[i-1])
			assert.GreaterOrEqual(t, gap, classifier.DefaultCooldown)
		}
	}
}

func TestSimulateRejectsBadInput(t *testing.T) {
	var out testutil.SyncBuffer
	err := Simulate(t.Context(), synthSettings("siren"), SimulateOptions{Pattern: "doorbell", Duration: time.Second}, &out)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, err.Error(), "fire, silence, siren, smoke")

	err = Simulate(t.Context(), synthSettings("siren"), SimulateOptions{Pattern: "siren"}, &out)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSimulateLiveEndsWithSource(t *testing.T) {
	var out testutil.SyncBuffer
	err := Simulate(t.Context(), synthSettings("silence"), SimulateOptions{
		Pattern:  "silence",
		Duration: 300 * time.Millisecond,
		Live:     true,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Listening on synth:silence")
}

func TestSimulateLiveStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	var out testutil.SyncBuffer
	start := time.Now()
	err := Simulate(ctx, synthSettings("silence"), SimulateOptions{Pattern: "silence", Live: true}, &out)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFileAnalysisMissingFile(t *testing.T) {
	var out testutil.SyncBuffer
	_, err := FileAnalysis(t.Context(), conf.Defaults(), filepath.Join(t.TempDir(), "missing.wav"), &out)
	require.Error(t, err)
}

func TestSourceFactory(t *testing.T) {
	s := synthSettings("fire")
	s.Capture.AnalysisRate = 30

	factory, err := SourceFactory(s)
	require.NoError(t, err)

	cfg := s.ClassifierConfig()
	src, err := factory(cfg.Constraints())
	require.NoError(t, err)
	assert.Equal(t, "synth:fire", src.Name())
	require.NoError(t, src.Close())

	s.Capture.Backend = "pulse"
	_, err = SourceFactory(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestWithConstraintsOverridesCaptureFields(t *testing.T) {
	var got audiocore.Constraints
	inner := func(c audiocore.Constraints) (audiocore.FrameSource, error) {
		got = c
		return nil, errors.NewStd("stop here")
	}

	want := audiocore.DefaultConstraints()
	want.AnalysisRate = 20
	want.NoiseSuppression = true

	_, err := withConstraints(inner, want)(audiocore.DefaultConstraints())
	require.Error(t, err)
	assert.Equal(t, 20, got.AnalysisRate)
	assert.True(t, got.NoiseSuppression)
	assert.Equal(t, audiocore.DefaultSampleRate, got.SampleRate)
}

func TestPipelineLifecycle(t *testing.T) {
	s := synthSettings("siren")
	s.Telemetry.Prometheus.Enabled = true

	p, err := NewPipeline(s, PipelineOptions{})
	require.NoError(t, err)
	require.NotNil(t, p.Metrics)
	assert.Equal(t, classifier.StateIdle, p.Arbiter.State())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestNewPipelineRejectsInvalidSettings(t *testing.T) {
	s := synthSettings("siren")
	s.Classifier.Threshold = 2

	_, err := NewPipeline(s, PipelineOptions{})
	var ve conf.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestSaveClassifierConfig(t *testing.T) {
	s := synthSettings("siren")
	p, err := NewPipeline(s, PipelineOptions{})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := p.Arbiter.Config()
	cfg.DetectionThreshold = 0.72
	require.NoError(t, p.Arbiter.UpdateConfig(cfg))
	require.NoError(t, p.SaveClassifierConfig(path)(cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "threshold: 0.72")

	require.NoError(t, p.SaveClassifierConfig("")(cfg))
	assert.InDelta(t, 0.72, s.Classifier.Threshold, 1e-9)
}

func TestServeDisabledWebServer(t *testing.T) {
	s := synthSettings("siren")
	s.WebServer.Enabled = false
	p, err := NewPipeline(s, PipelineOptions{})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	err = Serve(t.Context(), p, ServeOptions{}, &testutil.SyncBuffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := synthSettings("silence")
	s.WebServer.Listen = "127.0.0.1:0"
	p, err := NewPipeline(s, PipelineOptions{})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()

	var out testutil.SyncBuffer
	require.NoError(t, Serve(ctx, p, ServeOptions{AutoStart: true}, &out))
	assert.Contains(t, out.String(), "Serving on http://127.0.0.1:0")
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "00:00.000", formatOffset(0))
	assert.Equal(t, "01:05.250", formatOffset(65250*time.Millisecond))
}

func TestRenderMeter(t *testing.T) {
	assert.Equal(t, 15, strings.Count(renderMeter(50), "#"))
	assert.Equal(t, meterWidth, strings.Count(renderMeter(150), "#"))
	assert.Equal(t, 0, strings.Count(renderMeter(-3), "#"))
	assert.True(t, strings.HasPrefix(renderMeter(10), "\r["))
}

func TestLevelMeterIsThrottled(t *testing.T) {
	levels := make(chan float64, 3)
	levels <- 10
	levels <- 20
	levels <- 30
	close(levels)

	var out testutil.SyncBuffer
	runLevelMeter(t.Context(), levels, &out, time.Hour)
	assert.Equal(t, 1, strings.Count(out.String(), "\r["))
	assert.Contains(t, out.String(), " 10.0")
}
