// Package synth generates emergency-like test signals and runs them through
// the same spectrum analyser as real capture.
package synth

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/audiocore/spectrum"
	"github.com/tphakala/withu/internal/errors"
)

// blackmanCoherentGain converts a sinusoid amplitude to its normalised FFT
// magnitude: |X|/N = A * 0.42 / 2.
const blackmanCoherentGain = 0.21

// Component is band-limited energy: one sinusoid per FFT bin centre inside
// [MinHz, MaxHz) with random phases, each at Level dBFS in the spectrum.
type Component struct {
	MinHz float64
	MaxHz float64
	Level float64
}

// Pattern describes a synthetic signal.
type Pattern struct {
	Name       string
	Components []Component
	// Period is the on/off or sweep cycle length. Zero means steady.
	Period time.Duration
	// Duty is the fraction of Period during which the signal sounds.
	Duty float64
	// SweepHz shifts every component by SweepHz*sin(2πt/Period).
	SweepHz float64
}

// Built-in patterns, tuned so the default classifier recognises them.
var (
	Silence = Pattern{Name: "silence", Duty: 1}

	Siren = Pattern{
		Name: "siren",
		Components: []Component{
			{MinHz: 200, MaxHz: 800, Level: -45},
			{MinHz: 800, MaxHz: 2000, Level: -45},
		},
		Period:  4 * time.Second,
		Duty:    1,
		SweepHz: 120,
	}

	FireAlarm = Pattern{
		Name: "fire",
		Components: []Component{
			{MinHz: 800, MaxHz: 2000, Level: -55},
			{MinHz: 2000, MaxHz: 4000, Level: -50},
		},
		Period: time.Second,
		Duty:   0.5,
	}

	SmokeDetector = Pattern{
		Name: "smoke",
		Components: []Component{
			{MinHz: 4000, MaxHz: 8000, Level: -45},
		},
		Period: time.Second,
		Duty:   0.5,
	}
)

// Patterns indexes the built-in patterns by name.
var Patterns = map[string]Pattern{
	Silence.Name:       Silence,
	Siren.Name:         Siren,
	FireAlarm.Name:     FireAlarm,
	SmokeDetector.Name: SmokeDetector,
}

// Tone returns a steady single sinusoid at freq Hz with the given level.
func Tone(freq, level float64) Pattern {
	return Pattern{
		Name:       "tone",
		Components: []Component{{MinHz: freq, MaxHz: freq, Level: level}},
		Duty:       1,
	}
}

type oscillator struct {
	freq  float64
	amp   float64
	phase float64
}

// Source is a FrameSource backed by a Pattern.
type Source struct {
	mu       sync.Mutex
	pattern  Pattern
	c        audiocore.Constraints
	duration time.Duration
	seed     uint64

	open     bool
	analyser *spectrum.Analyser
	oscs     []oscillator
	samples  []float64
	bins     []uint8
	pos      int64 // samples generated
	epoch    time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithDuration makes the source finite.
func WithDuration(d time.Duration) Option {
	return func(s *Source) { s.duration = d }
}

// WithSeed fixes the oscillator phases.
func WithSeed(seed uint64) Option {
	return func(s *Source) { s.seed = seed }
}

// WithEpoch sets the timestamp of the first frame.
func WithEpoch(t time.Time) Option {
	return func(s *Source) { s.epoch = t }
}

// New creates a generator source.
func New(p Pattern, c audiocore.Constraints, opts ...Option) (*Source, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if p.Duty <= 0 || p.Duty > 1 {
		return nil, errors.Newf("pattern %q duty %.2f is invalid, must be within (0,1]", p.Name, p.Duty).
			Component("audiocore.synth").
			Category(errors.CategoryValidation).
			Build()
	}
	s := &Source{pattern: p, c: c, seed: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Factory returns a SourceFactory producing generators for p.
func Factory(p Pattern, opts ...Option) audiocore.SourceFactory {
	return func(c audiocore.Constraints) (audiocore.FrameSource, error) {
		return New(p, c, opts...)
	}
}

// Name implements audiocore.FrameSource.
func (s *Source) Name() string {
	return "synth:" + s.pattern.Name
}

// Open implements audiocore.FrameSource.
func (s *Source) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return audiocore.ErrAlreadyOpen
	}

	analyser, err := spectrum.NewAnalyser(s.c.FFTSize, s.c.SmoothingTimeConstant)
	if err != nil {
		return err
	}

	s.analyser = analyser
	s.oscs = s.buildOscillators()
	s.samples = make([]float64, s.c.HopSize())
	s.pos = 0
	s.open = true
	return nil
}

func (s *Source) buildOscillators() []oscillator {
	rng := rand.New(rand.NewPCG(s.seed, uint64(len(s.pattern.Components))))
	binWidth := float64(s.c.SampleRate) / float64(s.c.FFTSize)

	var oscs []oscillator
	for _, comp := range s.pattern.Components {
		amp := math.Pow(10, comp.Level/20) / blackmanCoherentGain
		if comp.MaxHz <= comp.MinHz {
			oscs = append(oscs, oscillator{freq: comp.MinHz, amp: amp})
			continue
		}
		for k := int(math.Ceil(comp.MinHz / binWidth)); float64(k)*binWidth < comp.MaxHz; k++ {
			oscs = append(oscs, oscillator{
				freq:  float64(k) * binWidth,
				amp:   amp,
				phase: rng.Float64() * 2 * math.Pi,
			})
		}
	}
	return oscs
}

// ReadFrame generates one hop of audio and returns the updated spectrum.
func (s *Source) ReadFrame() (audiocore.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return audiocore.AudioFrame{}, audiocore.ErrNotOpen
	}
	elapsed := s.elapsed()
	if s.duration > 0 && elapsed >= s.duration {
		return audiocore.AudioFrame{}, audiocore.ErrSourceExhausted
	}

	s.generate()
	s.analyser.Push(s.samples)
	s.bins = s.analyser.ByteFrequencyData(s.bins)

	return audiocore.AudioFrame{
		Bins:       append([]uint8(nil), s.bins...),
		SampleRate: s.c.SampleRate,
		FFTSize:    s.c.FFTSize,
		Timestamp:  s.epoch.Add(s.elapsed()),
	}, nil
}

func (s *Source) elapsed() time.Duration {
	return time.Duration(float64(s.pos) / float64(s.c.SampleRate) * float64(time.Second))
}

func (s *Source) generate() {
	sr := float64(s.c.SampleRate)
	period := s.pattern.Period.Seconds()

	for i := range s.samples {
		t := float64(s.pos) / sr
		s.pos++

		gate, shift := 1.0, 0.0
		if period > 0 {
			cycle := math.Mod(t, period) / period
			if cycle >= s.pattern.Duty {
				gate = 0
			}
			shift = s.pattern.SweepHz * math.Sin(2*math.Pi*t/period)
		}

		var v float64
		for j := range s.oscs {
			o := &s.oscs[j]
			o.phase += 2 * math.Pi * (o.freq + shift) / sr
			if o.phase > 2*math.Pi {
				o.phase -= 2 * math.Pi
			}
			v += o.amp * math.Sin(o.phase)
		}
		s.samples[i] = v * gate
	}
}

// Close implements audiocore.FrameSource.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.analyser = nil
	s.oscs = nil
	return nil
}
