package classifier

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// fakeSource replays frames and then repeats the last one forever.
type fakeSource struct {
	mu       sync.Mutex
	frames   []audiocore.AudioFrame
	pos      int
	openErr  error
	readErr  error
	opened   int
	closed   int
	isOpen   bool
	openGate chan struct{}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Open(ctx context.Context) error {
	if s.openGate != nil {
		select {
		case <-s.openGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	if s.openErr != nil {
		return s.openErr
	}
	s.isOpen = true
	return nil
}

func (s *fakeSource) ReadFrame() (audiocore.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen {
		return audiocore.AudioFrame{}, audiocore.ErrNotOpen
	}
	if s.readErr != nil {
		return audiocore.AudioFrame{}, s.readErr
	}
	if len(s.frames) == 0 {
		return audiocore.AudioFrame{}, audiocore.ErrSourceExhausted
	}
	f := s.frames[min(s.pos, len(s.frames)-1)]
	s.pos++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isOpen {
		s.closed++
	}
	s.isOpen = false
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// recordingSink counts callbacks.
type recordingSink struct {
	mu         sync.Mutex
	detections []DetectionEvent
	levels     []float64
	errs       []ErrorKind
	calls      atomic.Int64
}

func (r *recordingSink) OnDetection(e DetectionEvent) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detections = append(r.detections, e)
}

func (r *recordingSink) OnSoundLevel(l float64) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, l)
}

func (r *recordingSink) OnError(k ErrorKind, _ error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, k)
}

func (r *recordingSink) snapshot() (detections []DetectionEvent, levels []float64, errs []ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DetectionEvent(nil), r.detections...), append([]float64(nil), r.levels...), append([]ErrorKind(nil), r.errs...)
}

func factoryFor(src *fakeSource) (audiocore.SourceFactory, *atomic.Int32) {
	var calls atomic.Int32
	return func(audiocore.Constraints) (audiocore.FrameSource, error) {
		calls.Add(1)
		return src, nil
	}, &calls
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func newTestArbiter(t *testing.T, cfg Config, src *fakeSource, opts ...Option) (*Arbiter, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	factory, _ := factoryFor(src)
	a, err := NewArbiter(cfg, factory, sink, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return a, sink
}

func fireFrame() audiocore.AudioFrame {
	return bandFrame(SchemeAdvanced, map[string]uint8{"mid": 80, "high": 150})
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestZeroFrameEmitsNothing(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{uniformFrame(4096, 0)}}
	a, sink := newTestArbiter(t, DefaultConfig(), src)

	require.NoError(t, a.Start(t.Context()))
	for i := range 10 {
		_, emitted := a.Tick(t0.Add(time.Duration(i) * time.Second))
		assert.False(t, emitted)
	}

	detections, levels, errs := sink.snapshot()
	assert.Empty(t, detections)
	assert.Len(t, levels, 10)
	assert.Empty(t, errs)
	for _, l := range levels {
		assert.Zero(t, l)
	}
}

func TestFireAlarmFrameEmitsOneEvent(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}}
	a, sink := newTestArbiter(t, DefaultConfig(), src)

	require.NoError(t, a.Start(t.Context()))
	event, emitted := a.Tick(t0)

	require.True(t, emitted)
	assert.Equal(t, CategoryFireAlarm, event.Type)
	assert.InDelta(t, 1.0, event.Confidence, 1e-9)
	assert.Equal(t, t0, event.Timestamp)
	assert.NotEmpty(t, event.ID)
	assert.Greater(t, event.SoundLevel, 0.0)
	assert.LessOrEqual(t, event.SoundLevel, 100.0)

	detections, _, _ := sink.snapshot()
	require.Len(t, detections, 1)
	assert.Equal(t, event, detections[0])

	last, ok := a.LastEvent()
	require.True(t, ok)
	assert.Equal(t, event.ID, last.ID)
}

func TestCalibrationChangesScoring(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.FireHighMin = 200

	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}}
	a, sink := newTestArbiter(t, cfg, src)
	require.NoError(t, a.Start(t.Context()))

	_, emitted := a.Tick(t0)
	assert.False(t, emitted, "high band 150 no longer clears a 200 floor")
	detections, _, _ := sink.snapshot()
	assert.Empty(t, detections)
}

func TestCooldownSuppressesRepeatDetections(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}}
	cfg := DefaultConfig()
	cfg.Cooldown = 5000 * time.Millisecond
	a, sink := newTestArbiter(t, cfg, src)
	require.NoError(t, a.Start(t.Context()))

	_, first := a.Tick(t0)
	_, second := a.Tick(t0.Add(1000 * time.Millisecond))
	assert.True(t, first)
	assert.False(t, second)

	detections, _, _ := sink.snapshot()
	assert.Len(t, detections, 1)

	_, third := a.Tick(t0.Add(5000 * time.Millisecond))
	assert.True(t, third, "cooldown has fully elapsed")

	_, stale := a.Tick(t0.Add(time.Second))
	assert.False(t, stale, "older timestamps never emit")
}

func TestTieResolvesToSiren(t *testing.T) {
	constant := func(v float64) ScoreFunc { return func(Features) float64 { return v } }
	table := Matchers{
		{Category: CategorySiren, Score: constant(0.65)},
		{Category: CategoryFireAlarm, Score: constant(0.65)},
		{Category: CategorySmokeDetector, Score: constant(0.1)},
	}

	src := &fakeSource{frames: []audiocore.AudioFrame{uniformFrame(4096, 10)}}
	a, _ := newTestArbiter(t, DefaultConfig(), src, WithMatchers(table))
	require.NoError(t, a.Start(t.Context()))

	event, emitted := a.Tick(t0)
	require.True(t, emitted)
	assert.Equal(t, CategorySiren, event.Type)
	assert.InDelta(t, 0.65, event.Confidence, 1e-9)
}

func TestThresholdIsStrict(t *testing.T) {
	table := Matchers{{Category: CategoryFireAlarm, Score: func(Features) float64 { return 0.6 }}}
	src := &fakeSource{frames: []audiocore.AudioFrame{uniformFrame(4096, 10)}}
	a, _ := newTestArbiter(t, DefaultConfig(), src, WithMatchers(table))
	require.NoError(t, a.Start(t.Context()))

	_, emitted := a.Tick(t0)
	assert.False(t, emitted)
}

func TestStopHaltsCallbacks(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}}
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	a, sink := newTestArbiter(t, cfg, src)
	require.NoError(t, a.Start(t.Context()))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		now := t0
		for {
			select {
			case <-done:
				return
			default:
				now = now.Add(time.Millisecond)
				a.Tick(now)
			}
		}
	})

	require.Eventually(t, func() bool { return sink.calls.Load() > 20 }, time.Second, time.Millisecond)
	require.NoError(t, a.Stop())
	after := sink.calls.Load()

	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()

	assert.Equal(t, after, sink.calls.Load(), "no callbacks after Stop returned")
	assert.Equal(t, StateIdle, a.State())
	assert.Zero(t, a.SoundLevel())
}

func TestStopIsIdempotent(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}}
	a, sink := newTestArbiter(t, DefaultConfig(), src)
	require.NoError(t, a.Start(t.Context()))
	a.Tick(t0)

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())

	assert.Equal(t, 1, src.closeCount())
	_, _, errs := sink.snapshot()
	assert.Empty(t, errs)

	// Stop before any Start is also fine.
	idle, _ := newTestArbiter(t, DefaultConfig(), &fakeSource{})
	require.NoError(t, idle.Stop())
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}}
	factory, calls := factoryFor(src)
	a, err := NewArbiter(DefaultConfig(), factory, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	require.NoError(t, a.Start(t.Context()))
	require.NoError(t, a.Start(t.Context()))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateActive, a.State())
	assert.Equal(t, "fake", a.SourceName())
}

func TestStartFailureStaysIdle(t *testing.T) {
	tests := []struct {
		name     string
		openErr  error
		wantKind ErrorKind
		sentinel error
	}{
		{"permission denied", audiocore.NewPermissionError(fmt.Errorf("access denied"), "mic"), ErrorKindPermissionDenied, audiocore.ErrPermissionDenied},
		{"no device", audiocore.NewDeviceError(fmt.Errorf("no capture devices"), "mic", "open"), ErrorKindDeviceUnavailable, audiocore.ErrDeviceUnavailable},
		{"unsupported platform", audiocore.NewUnsupportedPlatformError("plan9"), ErrorKindUnsupportedPlatform, audiocore.ErrUnsupportedPlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{openErr: tt.openErr}
			a, sink := newTestArbiter(t, DefaultConfig(), src)

			err := a.Start(t.Context())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, StateIdle, a.State())

			_, _, errs := sink.snapshot()
			assert.Equal(t, []ErrorKind{tt.wantKind}, errs)

			_, emitted := a.Tick(t0)
			assert.False(t, emitted)
		})
	}
}

func TestFactoryFailureSurfaces(t *testing.T) {
	sink := &recordingSink{}
	factory := func(audiocore.Constraints) (audiocore.FrameSource, error) {
		return nil, audiocore.NewUnsupportedPlatformError("js")
	}
	a, err := NewArbiter(DefaultConfig(), factory, sink, WithLogger(quietLogger()))
	require.NoError(t, err)

	require.Error(t, a.Start(t.Context()))
	_, _, errs := sink.snapshot()
	assert.Equal(t, []ErrorKind{ErrorKindUnsupportedPlatform}, errs)
}

func TestCaptureErrorForcesIdle(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{uniformFrame(4096, 0)}}
	a, sink := newTestArbiter(t, DefaultConfig(), src)
	require.NoError(t, a.Start(t.Context()))
	a.Tick(t0)

	src.mu.Lock()
	src.readErr = audiocore.NewDeviceError(fmt.Errorf("device disconnected"), "fake", "read")
	src.mu.Unlock()

	_, emitted := a.Tick(t0.Add(time.Second))
	assert.False(t, emitted)
	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, 1, src.closeCount())

	_, _, errs := sink.snapshot()
	assert.Equal(t, []ErrorKind{ErrorKindDeviceUnavailable}, errs)
}

func TestExhaustedSourceStopsQuietly(t *testing.T) {
	src := &fakeSource{}
	a, sink := newTestArbiter(t, DefaultConfig(), src)
	require.NoError(t, a.Start(t.Context()))

	a.Tick(t0)
	assert.Equal(t, StateIdle, a.State())
	_, _, errs := sink.snapshot()
	assert.Empty(t, errs)
}

func TestPanicBecomesAnalysisFault(t *testing.T) {
	table := Matchers{{Category: CategorySiren, Score: func(Features) float64 { panic("boom") }}}
	src := &fakeSource{frames: []audiocore.AudioFrame{uniformFrame(4096, 0)}}
	a, sink := newTestArbiter(t, DefaultConfig(), src, WithMatchers(table))
	require.NoError(t, a.Start(t.Context()))

	assert.NotPanics(t, func() { a.Tick(t0) })
	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, 1, src.closeCount())

	_, _, errs := sink.snapshot()
	assert.Equal(t, []ErrorKind{ErrorKindAnalysisFault}, errs)
}

func TestFrameShapeMismatchIsFault(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{uniformFrame(2048, 0)}}
	a, sink := newTestArbiter(t, DefaultConfig(), src)
	require.NoError(t, a.Start(t.Context()))

	a.Tick(t0)
	assert.Equal(t, StateIdle, a.State())
	_, _, errs := sink.snapshot()
	assert.Equal(t, []ErrorKind{ErrorKindAnalysisFault}, errs)
}

func TestStopDuringOpenCancelsStart(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}, openGate: make(chan struct{})}
	a, _ := newTestArbiter(t, DefaultConfig(), src)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Start(t.Context()) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.starting
	}, time.Second, time.Millisecond)

	require.NoError(t, a.Stop())
	close(src.openGate)

	err := <-errCh
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, 1, src.closeCount())
}

func TestUpdateConfig(t *testing.T) {
	src := &fakeSource{frames: []audiocore.AudioFrame{fireFrame()}}
	a, _ := newTestArbiter(t, DefaultConfig(), src)
	require.NoError(t, a.Start(t.Context()))

	cfg := a.Config()
	cfg.Enabled = []SoundCategory{CategorySmokeDetector}
	require.NoError(t, a.UpdateConfig(cfg))

	_, emitted := a.Tick(t0)
	assert.False(t, emitted, "fire alarm disabled")

	cfg.Enabled = nil
	cfg.DetectionThreshold = 0.99
	require.NoError(t, a.UpdateConfig(cfg))
	event, emitted := a.Tick(t0.Add(time.Second))
	require.True(t, emitted, "confidence 1.0 clears 0.99")
	assert.Equal(t, CategoryFireAlarm, event.Type)

	bad := a.Config()
	bad.SampleRate = 48000
	err := a.UpdateConfig(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImmutableConfig)

	bad = a.Config()
	bad.DetectionThreshold = 1.5
	require.Error(t, a.UpdateConfig(bad))
}

func TestSimplifiedPipeline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheme = SchemeSimplified
	cfg.FFTSize = SchemeSimplified.FFTSize()

	frame := bandFrame(SchemeSimplified, map[string]uint8{"low": 30, "mid": 150, "high": 150})
	src := &fakeSource{frames: []audiocore.AudioFrame{frame}}
	a, _ := newTestArbiter(t, cfg, src)
	require.NoError(t, a.Start(t.Context()))

	event, emitted := a.Tick(t0)
	require.True(t, emitted)
	assert.Equal(t, CategoryFireAlarm, event.Type)
	assert.InDelta(t, 0.9, event.Confidence, 1e-9)
}

func TestNewArbiterValidation(t *testing.T) {
	_, err := NewArbiter(DefaultConfig(), nil, nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.FFTSize = 1000
	_, err = NewArbiter(cfg, func(audiocore.Constraints) (audiocore.FrameSource, error) { return nil, nil }, nil)
	require.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKindPermissionDenied, KindOf(audiocore.ErrPermissionDenied))
	assert.Equal(t, ErrorKindDeviceUnavailable, KindOf(fmt.Errorf("wrap: %w", audiocore.ErrDeviceUnavailable)))
	assert.Equal(t, ErrorKindUnsupportedPlatform, KindOf(audiocore.ErrUnsupportedPlatform))
	assert.Equal(t, ErrorKindAnalysisFault, KindOf(fmt.Errorf("anything else")))
	assert.Equal(t, "permission_denied", ErrorKindPermissionDenied.String())
}
