// Package metrics provides Prometheus collectors for the withu pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/withu/internal/classifier"
)

// ClassifierMetrics contains all Prometheus metrics related to the
// classification pipeline. It implements classifier.Recorder.
type ClassifierMetrics struct {
	FramesTotal       prometheus.Counter
	TickDuration      prometheus.Histogram
	CandidateScore    *prometheus.HistogramVec
	DetectionsTotal   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	SoundLevelGauge   prometheus.Gauge
	MonitoringGauge   prometheus.Gauge
	LastDetectionTime prometheus.Gauge
}

var _ classifier.Recorder = (*ClassifierMetrics)(nil)

// NewClassifierMetrics creates and registers the classifier metrics.
func NewClassifierMetrics(registry prometheus.Registerer) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.FramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "withu_frames_processed_total",
			Help: "Total number of audio frames analysed",
		},
	)
	m.TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "withu_tick_duration_seconds",
			Help:    "Time taken by one analysis tick",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 10), // 50µs to ~25ms
		},
	)
	m.CandidateScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "withu_candidate_confidence",
			Help:    "Matcher confidence per analysed frame",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"category"},
	)
	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withu_detections_total",
			Help: "Total number of emitted detection events partitioned by sound category",
		},
		[]string{"category"},
	)
	m.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withu_monitoring_errors_total",
			Help: "Total number of monitoring failures partitioned by error kind",
		},
		[]string{"kind"},
	)
	m.SoundLevelGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "withu_sound_level",
			Help: "Most recent sound level on a 0-100 scale",
		},
	)
	m.MonitoringGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "withu_monitoring_active",
			Help: "Whether monitoring is active (1) or idle (0)",
		},
	)
	m.LastDetectionTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "withu_last_detection_timestamp_seconds",
			Help: "Unix time of the most recent detection",
		},
	)
}

// RecordFrame implements classifier.Recorder.
func (m *ClassifierMetrics) RecordFrame(duration time.Duration) {
	m.FramesTotal.Inc()
	m.TickDuration.Observe(duration.Seconds())
}

// RecordCandidate implements classifier.Recorder.
func (m *ClassifierMetrics) RecordCandidate(category classifier.SoundCategory, confidence float64) {
	m.CandidateScore.WithLabelValues(string(category)).Observe(confidence)
}

// RecordDetection implements classifier.Recorder.
func (m *ClassifierMetrics) RecordDetection(category classifier.SoundCategory) {
	m.DetectionsTotal.WithLabelValues(string(category)).Inc()
	m.LastDetectionTime.SetToCurrentTime()
}

// RecordSoundLevel implements classifier.Recorder.
func (m *ClassifierMetrics) RecordSoundLevel(level float64) {
	m.SoundLevelGauge.Set(level)
}

// RecordError implements classifier.Recorder.
func (m *ClassifierMetrics) RecordError(kind classifier.ErrorKind) {
	m.ErrorsTotal.WithLabelValues(kind.String()).Inc()
}

// RecordState implements classifier.Recorder.
func (m *ClassifierMetrics) RecordState(state classifier.State) {
	if state == classifier.StateActive {
		m.MonitoringGauge.Set(1)
		return
	}
	m.MonitoringGauge.Set(0)
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesTotal.Describe(ch)
	m.TickDuration.Describe(ch)
	m.CandidateScore.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.ErrorsTotal.Describe(ch)
	m.SoundLevelGauge.Describe(ch)
	m.MonitoringGauge.Describe(ch)
	m.LastDetectionTime.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesTotal.Collect(ch)
	m.TickDuration.Collect(ch)
	m.CandidateScore.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.ErrorsTotal.Collect(ch)
	m.SoundLevelGauge.Collect(ch)
	m.MonitoringGauge.Collect(ch)
	m.LastDetectionTime.Collect(ch)
}
