package analysis

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/audiocore/sources/file"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/events"
	"github.com/tphakala/withu/internal/monitor"
)

// streamEpoch is the clock origin for offline passes. Detection timestamps
// minus streamEpoch give the offset into the recording.
var streamEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Report is the result of an offline pass.
type Report struct {
	Source     string
	Summary    monitor.Summary
	Detections []classifier.DetectionEvent
}

// Offset returns the stream position of ev.
func (r *Report) Offset(ev classifier.DetectionEvent) time.Duration {
	return ev.Timestamp.Sub(streamEpoch)
}

// collector gathers detections delivered by the bus.
type collector struct {
	mu     sync.Mutex
	events []classifier.DetectionEvent
}

func (c *collector) consumer() events.Consumer {
	return events.ConsumerFuncs{
		ConsumerName: "report",
		Detection: func(ev classifier.DetectionEvent) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.events = append(c.events, ev)
			return nil
		},
	}
}

// RunOffline drives factory to exhaustion as fast as possible. Alerts are
// recorded in history only and metrics are not registered.
func RunOffline(ctx context.Context, settings *conf.Settings, factory audiocore.SourceFactory, source string) (*Report, error) {
	s := *settings
	s.Alert.AutoAlert = false
	s.Telemetry.Prometheus.Enabled = false

	col := &collector{}
	p, err := NewPipeline(&s, PipelineOptions{
		Factory:       factory,
		Consumers:     []events.Consumer{col.consumer()},
		RunnerOptions: []monitor.Option{monitor.WithClock(func() time.Time { return streamEpoch })},
	})
	if err != nil {
		return nil, err
	}

	sum, runErr := p.Runner.RunToCompletion(ctx)
	// Close drains the bus so the collector has every detection.
	closeErr := p.Close()
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	return &Report{
		Source:     source,
		Summary:    sum,
		Detections: col.events,
	}, nil
}

// FileAnalysis analyses a WAV recording and prints its detections.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string, out io.Writer) (*Report, error) {
	info, err := file.ReadInfo(path)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Analyzing %s (%d Hz, %d ch, %d-bit, %v)\n",
		path, info.SampleRate, info.Channels, info.BitDepth, info.Duration.Round(time.Millisecond))

	report, err := RunOffline(ctx, settings, withConstraints(file.Factory(path), settings.Constraints()), path)
	if err != nil {
		return nil, err
	}
	PrintReport(out, report)
	return report, nil
}

// PrintReport writes one line per detection followed by a summary.
func PrintReport(out io.Writer, r *Report) {
	for _, ev := range r.Detections {
		fmt.Fprintf(out, "  %8s  %-15s %5.1f%%  level %5.1f\n",
			formatOffset(r.Offset(ev)), ev.Type, ev.Confidence*100, ev.SoundLevel)
	}
	fmt.Fprintf(out, "%d detections in %v of audio (%d frames)\n",
		len(r.Detections), r.Summary.Duration.Round(time.Millisecond), r.Summary.Ticks)
}

func formatOffset(d time.Duration) string {
	d = d.Round(time.Millisecond)
	m := d / time.Minute
	s := float64(d%time.Minute) / float64(time.Second)
	return fmt.Sprintf("%02d:%06.3f", m, s)
}
