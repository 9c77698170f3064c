package classifier

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// Arbiter turns a stream of frames into debounced detection events.
//
// It is Idle until Start opens a capture source, then Active until Stop, a
// capture error, an analysis fault or the end of a finite source. Tick runs
// one analysis step and holds the Arbiter lock for its whole duration,
// callbacks included, so Stop waits for an in-flight tick and nothing is
// delivered to the Sink once Stop has returned.
type Arbiter struct {
	mu sync.Mutex

	factory  audiocore.SourceFactory
	sink     Sink
	recorder Recorder
	log      logger.Logger
	newID    func() string
	table    Matchers // unfiltered matcher table

	cfg      Config
	matchers Matchers
	state    State
	starting bool
	gen      uint64
	source   audiocore.FrameSource

	soundLevel float64
	lastEmit   time.Time
	hasEmitted bool
	lastEvent  *DetectionEvent
	frames     uint64
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Arbiter) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Arbiter) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMatchers replaces the scheme's default matcher table.
func WithMatchers(m Matchers) Option {
	return func(a *Arbiter) {
		a.table = m
	}
}

// WithIDGenerator overrides event ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(a *Arbiter) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// NewArbiter creates an idle Arbiter. factory is called on every Start to
// obtain a fresh capture source.
func NewArbiter(cfg Config, factory audiocore.SourceFactory, sink Sink, opts ...Option) (*Arbiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.Newf("source factory is required").
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}
	if sink == nil {
		sink = SinkFuncs{}
	}

	a := &Arbiter{
		factory:  factory,
		sink:     sink,
		recorder: noopRecorder{},
		log:      GetLogger(),
		newID:    newEventID,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.table == nil {
		a.table = DefaultMatchers(cfg.Scheme, cfg.Calibration)
	}
	a.matchers = a.table.Filter(cfg.enabledSet())

	return a, nil
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Start opens the capture source and enters the Active state. Starting an
// active Arbiter is a no-op. On failure the Arbiter stays Idle, the error is
// reported to the Sink and returned.
func (a *Arbiter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateActive || a.starting {
		a.mu.Unlock()
		return nil
	}
	a.starting = true
	gen := a.gen
	cfg := a.cfg
	a.mu.Unlock()

	source, err := a.openSource(ctx, cfg)

	a.mu.Lock()
	a.starting = false
	if err == nil && a.gen != gen {
		// Stop ran while the device was opening.
		a.mu.Unlock()
		if cerr := source.Close(); cerr != nil {
			a.log.Warn("failed to close capture source after cancelled start", logger.Error(cerr))
		}
		return errors.Newf("monitoring start cancelled").
			Component("classifier").
			Category(errors.CategoryCancellation).
			Build()
	}
	if err != nil {
		a.mu.Unlock()
		kind := KindOf(err)
		a.log.Error("failed to start monitoring",
			logger.Error(err),
			logger.String("kind", kind.String()))
		a.recorder.RecordError(kind)
		a.sink.OnError(kind, err)
		return err
	}

	a.source = source
	a.state = StateActive
	a.soundLevel = 0
	a.recorder.RecordState(StateActive)
	a.mu.Unlock()

	a.log.Info("monitoring started",
		logger.String("source", source.Name()),
		logger.String("scheme", string(cfg.Scheme)),
		logger.Int("fft_size", cfg.FFTSize),
		logger.Float64("threshold", cfg.DetectionThreshold),
		logger.Duration("cooldown", cfg.Cooldown))

	return nil
}

func (a *Arbiter) openSource(ctx context.Context, cfg Config) (audiocore.FrameSource, error) {
	source, err := a.factory(cfg.Constraints())
	if err != nil {
		return nil, err
	}
	if err := source.Open(ctx); err != nil {
		_ = source.Close()
		return nil, err
	}
	return source, nil
}

// Stop tears down the capture source and returns to Idle. It waits for an
// in-flight Tick, and is idempotent.
func (a *Arbiter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	if a.state != StateActive {
		return nil
	}

	err := a.teardownLocked()
	a.log.Info("monitoring stopped", logger.Uint64("frames", a.frames))
	return err
}

// teardownLocked closes the source and resets live state.
func (a *Arbiter) teardownLocked() error {
	var err error
	if a.source != nil {
		if cerr := a.source.Close(); cerr != nil {
			a.log.Warn("failed to close capture source", logger.Error(cerr))
			err = cerr
		}
		a.source = nil
	}
	a.state = StateIdle
	a.soundLevel = 0
	a.recorder.RecordSoundLevel(0)
	a.recorder.RecordState(StateIdle)
	return err
}

// failLocked forces Idle and reports err to the Sink.
func (a *Arbiter) failLocked(kind ErrorKind, err error) {
	_ = a.teardownLocked()
	a.log.Error("monitoring stopped on error",
		logger.Error(err),
		logger.String("kind", kind.String()))
	a.recorder.RecordError(kind)
	a.sink.OnError(kind, err)
}

// Tick runs one analysis step at time now. It returns the emitted event,
// if any. Ticks on an Idle Arbiter do nothing.
func (a *Arbiter) Tick(now time.Time) (event DetectionEvent, emitted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateActive {
		return DetectionEvent{}, false
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("analysis fault: %v", r).
				Component("classifier").
				Category(errors.CategoryAudioAnalysis).
				Priority(errors.PriorityHigh).
				Context("stack", string(debug.Stack())).
				Build()
			a.failLocked(ErrorKindAnalysisFault, err)
			event, emitted = DetectionEvent{}, false
		}
	}()

	frame, err := a.source.ReadFrame()
	if err != nil {
		if errors.Is(err, audiocore.ErrSourceExhausted) {
			a.log.Info("capture source exhausted", logger.Uint64("frames", a.frames))
			_ = a.teardownLocked()
			return DetectionEvent{}, false
		}
		a.failLocked(KindOf(err), err)
		return DetectionEvent{}, false
	}

	if frame.FFTSize != a.cfg.FFTSize || frame.BinCount() != a.cfg.FFTSize/2 {
		a.failLocked(ErrorKindAnalysisFault, errors.Newf("frame shape mismatch: fft size %d with %d bins, want %d",
			frame.FFTSize, frame.BinCount(), a.cfg.FFTSize).
			Component("classifier").
			Category(errors.CategoryAudioAnalysis).
			Build())
		return DetectionEvent{}, false
	}

	a.frames++
	features := ExtractFeatures(frame, a.cfg.Scheme)
	a.soundLevel = features.SoundLevel
	a.recorder.RecordSoundLevel(features.SoundLevel)
	a.sink.OnSoundLevel(features.SoundLevel)

	candidates := a.matchers.Evaluate(features)
	for _, c := range candidates {
		a.recorder.RecordCandidate(c.Type, c.Confidence)
	}
	best := Select(candidates)

	if best.Confidence > a.cfg.DetectionThreshold && a.cooldownElapsedLocked(now) {
		event = DetectionEvent{
			ID:         a.newID(),
			Type:       best.Type,
			Confidence: best.Confidence,
			Timestamp:  now,
			SoundLevel: features.SoundLevel,
		}
		a.lastEmit = now
		a.hasEmitted = true
		last := event
		a.lastEvent = &last
		emitted = true

		a.log.Info("emergency sound detected",
			logger.String("type", string(event.Type)),
			logger.Float64("confidence", event.Confidence),
			logger.Float64("sound_level", event.SoundLevel))
		a.recorder.RecordDetection(event.Type)
		a.sink.OnDetection(event)
	}

	a.recorder.RecordFrame(time.Since(started))
	return event, emitted
}

// cooldownElapsedLocked also refuses timestamps older than the last event
// so emitted events stay ordered.
func (a *Arbiter) cooldownElapsedLocked(now time.Time) bool {
	if !a.hasEmitted {
		return true
	}
	if now.Before(a.lastEmit) {
		return false
	}
	return now.Sub(a.lastEmit) >= a.cfg.Cooldown
}

// UpdateConfig applies threshold, cooldown, enabled category and
// calibration changes from the next tick on. Sample rate, FFT size,
// smoothing and band scheme are fixed for the Arbiter's lifetime.
func (a *Arbiter) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if cfg.SampleRate != a.cfg.SampleRate || cfg.FFTSize != a.cfg.FFTSize ||
		cfg.Scheme != a.cfg.Scheme || cfg.SmoothingTimeConstant != a.cfg.SmoothingTimeConstant {
		return errors.New(fmt.Errorf("%w: sample rate, fft size, smoothing and band scheme cannot change", ErrImmutableConfig)).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	if cfg.Calibration != a.cfg.Calibration {
		a.table = DefaultMatchers(cfg.Scheme, cfg.Calibration)
	}
	a.cfg = cfg
	a.matchers = a.table.Filter(cfg.enabledSet())

	a.log.Info("classifier config updated",
		logger.Float64("threshold", cfg.DetectionThreshold),
		logger.Duration("cooldown", cfg.Cooldown),
		logger.Int("matchers", len(a.matchers)))
	return nil
}

// ErrImmutableConfig is returned when UpdateConfig touches fixed fields.
var ErrImmutableConfig = errors.NewStd("immutable classifier setting changed")

// Config returns a copy of the active configuration.
func (a *Arbiter) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := a.cfg
	cfg.Enabled = append([]SoundCategory(nil), a.cfg.Enabled...)
	return cfg
}

// State returns the lifecycle state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SoundLevel returns the last computed sound level, 0 while Idle.
func (a *Arbiter) SoundLevel() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.soundLevel
}

// LastEvent returns the most recent detection, if any.
func (a *Arbiter) LastEvent() (DetectionEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastEvent == nil {
		return DetectionEvent{}, false
	}
	return *a.lastEvent, true
}

// SourceName returns the name of the open source, or "" while Idle.
func (a *Arbiter) SourceName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.source == nil {
		return ""
	}
	return a.source.Name()
}
