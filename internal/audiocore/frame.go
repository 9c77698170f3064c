package audiocore

import "time"

const (
	// DefaultSampleRate is the capture rate for every pipeline.
	DefaultSampleRate = 44100

	// FFTSizeAdvanced is the transform size of the four-band pipeline.
	FFTSizeAdvanced = 4096

	// FFTSizeSimplified is the transform size of the three-band pipeline.
	FFTSizeSimplified = 2048

	// DefaultSmoothingTimeConstant matches the analyser default of the
	// browser audio stack the thresholds were tuned against.
	DefaultSmoothingTimeConstant = 0.8

	// DefaultAnalysisRate is the number of frames read per second.
	DefaultAnalysisRate = 60
)

// AudioFrame is a snapshot of byte-scaled frequency magnitudes.
// Bins holds FFTSize/2 values; bin i is centred on i*SampleRate/FFTSize Hz.
type AudioFrame struct {
	Bins       []uint8
	SampleRate int
	FFTSize    int
	Timestamp  time.Time
}

// BinCount returns the number of frequency bins in the frame.
func (f AudioFrame) BinCount() int {
	return len(f.Bins)
}

// BinFrequency returns the centre frequency of bin i in Hz.
func (f AudioFrame) BinFrequency(i int) float64 {
	if f.FFTSize == 0 {
		return 0
	}
	return float64(i) * float64(f.SampleRate) / float64(f.FFTSize)
}

// BinWidth returns the frequency resolution of the frame in Hz.
func (f AudioFrame) BinWidth() float64 {
	return f.BinFrequency(1)
}

// Constraints describe the stream a FrameSource should deliver.
type Constraints struct {
	SampleRate            int
	Channels              int
	FFTSize               int
	SmoothingTimeConstant float64
	// AnalysisRate is how many frames per second the consumer reads. File
	// and generator sources advance their position by SampleRate/AnalysisRate
	// samples per ReadFrame.
	AnalysisRate     int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultConstraints returns mono 44.1 kHz capture with raw processing.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:            DefaultSampleRate,
		Channels:              1,
		FFTSize:               FFTSizeAdvanced,
		SmoothingTimeConstant: DefaultSmoothingTimeConstant,
		AnalysisRate:          DefaultAnalysisRate,
	}
}

// HopSize returns the number of samples between consecutive frames.
func (c Constraints) HopSize() int {
	if c.AnalysisRate <= 0 {
		return c.SampleRate / DefaultAnalysisRate
	}
	return c.SampleRate / c.AnalysisRate
}

// Validate checks that the constraints describe a usable stream.
func (c Constraints) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return newValidationError("sample_rate", c.SampleRate, "sample rate must be positive")
	case c.Channels < 1 || c.Channels > 2:
		return newValidationError("channels", c.Channels, "channels must be 1 or 2")
	case c.FFTSize < 32 || c.FFTSize&(c.FFTSize-1) != 0:
		return newValidationError("fft_size", c.FFTSize, "fft size must be a power of two >= 32")
	case c.SmoothingTimeConstant < 0 || c.SmoothingTimeConstant > 1:
		return newValidationError("smoothing", c.SmoothingTimeConstant, "smoothing time constant must be within [0,1]")
	case c.AnalysisRate < 0:
		return newValidationError("analysis_rate", c.AnalysisRate, "analysis rate must not be negative")
	}
	return nil
}
