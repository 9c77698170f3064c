package analysis

import (
	"context"
	"fmt"
	"io"

	"github.com/tphakala/withu/internal/alert"
	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/events"
	"github.com/tphakala/withu/internal/logger"
)

// RealtimeMonitoring runs the configured source live with console alerts
// and a level meter until ctx is cancelled or the source ends.
func RealtimeMonitoring(ctx context.Context, p *Pipeline, out io.Writer) error {
	cfg := p.Arbiter.Config()
	fmt.Fprintf(out, "Starting monitoring. Scheme: %s, threshold: %.2f, cooldown: %v, analysis rate: %d Hz\n",
		cfg.Scheme, cfg.DetectionThreshold, cfg.Cooldown, p.Settings.Capture.AnalysisRate)

	if err := p.Runner.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Listening on %s. Press Ctrl+C to stop.\n", p.Arbiter.SourceName())

	levels, unsubscribe := p.Bus.SubscribeLevels(1)
	defer unsubscribe()

	meterCtx, stopMeter := context.WithCancel(ctx)
	meterDone := make(chan struct{})
	go func() {
		defer close(meterDone)
		runLevelMeter(meterCtx, levels, out, meterInterval)
	}()

	select {
	case <-ctx.Done():
		p.log.Info("monitoring interrupted")
	case <-p.Runner.Done():
		p.log.Info("capture source ended")
	}

	stopMeter()
	<-meterDone
	fmt.Fprintln(out)

	if err := p.Runner.Stop(); err != nil {
		p.log.Warn("failed to stop monitoring", logger.Error(err))
		return err
	}
	return nil
}

// NewConsolePipeline builds a pipeline that alerts on out and prints each
// detection. A nil factory uses the configured capture backend.
func NewConsolePipeline(settings *conf.Settings, factory audiocore.SourceFactory, out io.Writer) (*Pipeline, error) {
	return NewPipeline(settings, PipelineOptions{
		Factory:     factory,
		Peripherals: alert.NewConsolePeripherals(out),
		Consumers:   []events.Consumer{consoleDetections(out)},
	})
}
