// Package spectrum turns PCM samples into smoothed, byte-scaled magnitude
// spectra in the style of a browser AnalyserNode.
//
// Each call to ByteFrequencyData windows the most recent FFTSize samples
// with a Blackman window, takes a real FFT, blends the normalised magnitudes
// with the previous result using the smoothing time constant, converts them
// to decibels and maps [MinDecibels, MaxDecibels] onto [0, 255].
package spectrum

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/tphakala/withu/internal/errors"
)

const (
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
)

// Analyser is not safe for concurrent use; the owning FrameSource
// serialises Push and ByteFrequencyData.
type Analyser struct {
	fftSize   int
	smoothing float64
	minDb     float64
	maxDb     float64

	fft      *fourier.FFT
	window   []float64
	history  []float64 // circular buffer of the last fftSize samples
	pos      int
	filled   int
	scratch  []float64
	coeffs   []complex128
	smoothed []float64
}

// Option configures an Analyser.
type Option func(*Analyser)

// WithDecibelRange overrides the byte scaling range.
func WithDecibelRange(minDb, maxDb float64) Option {
	return func(a *Analyser) {
		a.minDb = minDb
		a.maxDb = maxDb
	}
}

// NewAnalyser creates an analyser for the given transform size.
func NewAnalyser(fftSize int, smoothing float64, opts ...Option) (*Analyser, error) {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		return nil, errors.Newf("fft size %d is invalid, must be a power of two >= 32", fftSize).
			Component("spectrum").
			Category(errors.CategoryValidation).
			Build()
	}
	if smoothing < 0 || smoothing > 1 {
		return nil, errors.Newf("smoothing time constant %.3f is invalid, must be within [0,1]", smoothing).
			Component("spectrum").
			Category(errors.CategoryValidation).
			Build()
	}

	a := &Analyser{
		fftSize:   fftSize,
		smoothing: smoothing,
		minDb:     DefaultMinDecibels,
		maxDb:     DefaultMaxDecibels,
		fft:       fourier.NewFFT(fftSize),
		history:   make([]float64, fftSize),
		scratch:   make([]float64, fftSize),
		coeffs:    make([]complex128, fftSize/2+1),
		smoothed:  make([]float64, fftSize/2),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxDb <= a.minDb {
		return nil, errors.Newf("decibel range [%.1f, %.1f] is invalid", a.minDb, a.maxDb).
			Component("spectrum").
			Category(errors.CategoryValidation).
			Build()
	}

	ones := make([]float64, fftSize)
	for i := range ones {
		ones[i] = 1
	}
	a.window = window.Blackman(ones)

	return a, nil
}

// FFTSize returns the transform size.
func (a *Analyser) FFTSize() int {
	return a.fftSize
}

// BinCount returns the number of output bins, FFTSize/2.
func (a *Analyser) BinCount() int {
	return a.fftSize / 2
}

// Push appends samples in [-1, 1] to the time-domain history.
func (a *Analyser) Push(samples []float64) {
	// Only the tail can survive.
	if len(samples) > a.fftSize {
		samples = samples[len(samples)-a.fftSize:]
	}
	for _, s := range samples {
		a.history[a.pos] = s
		a.pos = (a.pos + 1) % a.fftSize
	}
	a.filled = min(a.filled+len(samples), a.fftSize)
}

// Buffered returns how many history samples hold real audio.
func (a *Analyser) Buffered() int {
	return a.filled
}

// ByteFrequencyData writes BinCount byte-scaled magnitudes into dst and
// returns it. dst is reallocated if it is too short.
func (a *Analyser) ByteFrequencyData(dst []uint8) []uint8 {
	n := a.BinCount()
	if cap(dst) < n {
		dst = make([]uint8, n)
	}
	dst = dst[:n]

	// Oldest sample first.
	for i := range a.fftSize {
		a.scratch[i] = a.history[(a.pos+i)%a.fftSize] * a.window[i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.scratch)

	norm := 1 / float64(a.fftSize)
	dbRange := a.maxDb - a.minDb
	for k := range n {
		mag := cmplx.Abs(a.coeffs[k]) * norm
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		dst[k] = toByte(linearToDecibels(a.smoothed[k]), a.minDb, dbRange)
	}

	return dst
}

// Reset clears the sample history and smoothing state.
func (a *Analyser) Reset() {
	clear(a.history)
	clear(a.smoothed)
	a.pos = 0
	a.filled = 0
}

func linearToDecibels(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

func toByte(db, minDb, dbRange float64) uint8 {
	scaled := 255 * (db - minDb) / dbRange
	switch {
	case math.IsNaN(scaled), scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return uint8(scaled)
	}
}
