// Package monitor schedules the classifier's analysis ticks.
//
// The Arbiter does no scheduling of its own; Runner plays the part of the
// host render loop, calling Tick at a fixed analysis rate on one goroutine.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// Engine is the part of classifier.Arbiter the runner drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
	Tick(now time.Time) (classifier.DetectionEvent, bool)
	State() classifier.State
}

var _ Engine = (*classifier.Arbiter)(nil)

// GetLogger returns the monitor module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

// Runner drives an Engine from a ticker.
type Runner struct {
	engine   Engine
	interval time.Duration
	now      func() time.Time
	log      logger.Logger

	startMu sync.Mutex // serializes Start

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterval overrides the tick interval derived from the analysis rate.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock sets the time source passed to Tick.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner creates a runner ticking analysisRate times per second. A
// non-positive rate uses audiocore.DefaultAnalysisRate.
func NewRunner(engine Engine, analysisRate int, opts ...Option) (*Runner, error) {
	if engine == nil {
		return nil, errors.Newf("monitor engine is required").
			Component("monitor").
			Category(errors.CategoryValidation).
			Build()
	}
	if analysisRate <= 0 {
		analysisRate = audiocore.DefaultAnalysisRate
	}

	r := &Runner{
		engine:   engine,
		interval: time.Second / time.Duration(analysisRate),
		now:      time.Now,
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Interval returns the tick interval.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Start opens capture through the engine and, once it is Active, launches
// the tick loop. Starting a running monitor is a no-op. Capture failures
// are returned and the runner stays stopped.
func (r *Runner) Start(ctx context.Context) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	if r.Running() {
		return nil
	}

	if err := r.engine.Start(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.loop(loopCtx, done)

	r.log.Debug("tick loop started", logger.Duration("interval", r.interval))
	return nil
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		// A Stop between engine start and loop launch leaves the engine Idle.
		if r.engine.State() != classifier.StateActive {
			r.log.Debug("tick loop exiting, engine idle")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.engine.Tick(r.now())
		}
	}
}

// Stop halts the engine and waits for the tick loop to exit. No Sink
// callback runs after Stop returns. It is idempotent.
func (r *Runner) Stop() error {
	err := r.engine.Stop()

	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		r.log.Debug("tick loop stopped")
	}
	return err
}

// Done returns a channel closed when the current tick loop exits, either
// through Stop or because the engine fell back to Idle. It is already
// closed when nothing has been started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.done
}

// Running reports whether the tick loop is alive.
func (r *Runner) Running() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Summary describes a RunToCompletion pass.
type Summary struct {
	Ticks      int
	Detections int
	Duration   time.Duration // stream time covered
}

// RunToCompletion drives a finite source as fast as possible on the calling
// goroutine. The clock passed to Tick starts at the runner's clock and
// advances one interval per frame, so cooldowns are measured in stream
// time. It returns when the engine falls back to Idle or ctx is cancelled.
func (r *Runner) RunToCompletion(ctx context.Context) (Summary, error) {
	var sum Summary

	if err := r.engine.Start(ctx); err != nil {
		return sum, err
	}

	start := r.now()
	for r.engine.State() == classifier.StateActive {
		if err := ctx.Err(); err != nil {
			if stopErr := r.engine.Stop(); stopErr != nil {
				r.log.Warn("failed to stop engine after cancellation", logger.Error(stopErr))
			}
			return sum, err
		}

		now := start.Add(time.Duration(sum.Ticks) * r.interval)
		if _, emitted := r.engine.Tick(now); emitted {
			sum.Detections++
		}
		sum.Ticks++
	}

	sum.Duration = time.Duration(sum.Ticks) * r.interval
	r.log.Info("analysis pass complete",
		logger.Int("ticks", sum.Ticks),
		logger.Int("detections", sum.Detections),
		logger.Duration("stream_time", sum.Duration))
	return sum, nil
}
