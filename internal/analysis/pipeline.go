package analysis

import (
	"io"
	"sync"
	"time"

	"github.com/tphakala/withu/internal/alert"
	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/events"
	"github.com/tphakala/withu/internal/logger"
	"github.com/tphakala/withu/internal/monitor"
	"github.com/tphakala/withu/internal/observability"
)

const busShutdownTimeout = 5 * time.Second

// Pipeline is one configured monitoring stack. Detections and errors flow
// from the Arbiter through the event bus to the alert dispatcher and any
// extra consumers; sound levels are broadcast to bus subscribers.
type Pipeline struct {
	Settings *conf.Settings
	Bus      *events.Bus
	Alerts   *alert.Dispatcher
	Metrics  *observability.Metrics
	Arbiter  *classifier.Arbiter
	Runner   *monitor.Runner

	log       logger.Logger
	closeOnce sync.Once
	closeErr  error
}

// PipelineOptions customise NewPipeline.
type PipelineOptions struct {
	// Factory overrides the backend selected by settings.
	Factory audiocore.SourceFactory
	// Peripherals drive alerts. Zero value peripherals are silent.
	Peripherals alert.Peripherals
	// Consumers receive detections after the alert dispatcher.
	Consumers []events.Consumer
	// RunnerOptions are passed to monitor.NewRunner.
	RunnerOptions []monitor.Option
}

// NewPipeline builds the stack described by settings. The caller owns the
// returned Pipeline and must Close it.
func NewPipeline(settings *conf.Settings, opts PipelineOptions) (*Pipeline, error) {
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, err
	}

	factory := opts.Factory
	if factory == nil {
		var err error
		if factory, err = SourceFactory(settings); err != nil {
			return nil, err
		}
	}

	p := &Pipeline{
		Settings: settings,
		log:      GetLogger(),
	}

	p.Bus = events.NewBus(events.Config{BufferSize: settings.EventBus.BufferSize})

	dispatcher, err := alert.NewDispatcher(settings.AlertConfig(), opts.Peripherals)
	if err != nil {
		_ = p.closeBus()
		return nil, err
	}
	p.Alerts = dispatcher

	consumers := append([]events.Consumer{dispatcher}, opts.Consumers...)
	for _, c := range consumers {
		if err := p.Bus.RegisterConsumer(c); err != nil {
			_ = p.Close()
			return nil, err
		}
	}

	var arbiterOpts []classifier.Option
	if settings.Telemetry.Prometheus.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			_ = p.Close()
			return nil, errors.New(err).
				Component("analysis").
				Category(errors.CategorySystem).
				Context("operation", "metrics_init").
				Build()
		}
		if err := m.RegisterEventBus(p.Bus.Stats); err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Metrics = m
		arbiterOpts = append(arbiterOpts, classifier.WithRecorder(m.Classifier))
	}

	arbiter, err := classifier.NewArbiter(settings.ClassifierConfig(), factory, p.Bus, arbiterOpts...)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Arbiter = arbiter

	runner, err := monitor.NewRunner(arbiter, settings.Capture.AnalysisRate, opts.RunnerOptions...)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Runner = runner

	return p, nil
}

// SaveClassifierConfig persists runtime classifier changes to path.
func (p *Pipeline) SaveClassifierConfig(path string) func(classifier.Config) error {
	return func(cfg classifier.Config) error {
		p.Settings.ApplyClassifierConfig(cfg)
		if path == "" {
			return nil
		}
		if err := conf.SaveYAMLConfig(path, p.Settings); err != nil {
			return err
		}
		p.log.Info("classifier settings saved", logger.String("path", path))
		return nil
	}
}

// Close stops monitoring, drains the bus and cancels alert patterns. It is
// safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.close()
	})
	return p.closeErr
}

func (p *Pipeline) close() error {
	var errs []error
	if p.Runner != nil {
		if err := p.Runner.Stop(); err != nil {
			errs = append(errs, err)
		}
	} else if p.Arbiter != nil {
		if err := p.Arbiter.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.closeBus(); err != nil {
		errs = append(errs, err)
	}
	if p.Alerts != nil {
		if err := p.Alerts.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) closeBus() error {
	if p.Bus == nil {
		return nil
	}
	return p.Bus.Shutdown(busShutdownTimeout)
}

// consoleDetections prints each detection as a single line.
func consoleDetections(w io.Writer) events.Consumer {
	return events.ConsumerFuncs{
		ConsumerName: "console",
		Detection: func(ev classifier.DetectionEvent) error {
			_, err := io.WriteString(w, formatDetection(ev)+"\n")
			return err
		},
	}
}
