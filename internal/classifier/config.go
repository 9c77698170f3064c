package classifier

import (
	"fmt"
	"slices"
	"time"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/errors"
)

const (
	DefaultDetectionThreshold = 0.6
	DefaultCooldown           = 5 * time.Second
)

// Config is the runtime classifier configuration owned by the caller.
type Config struct {
	DetectionThreshold    float64
	Cooldown              time.Duration
	SampleRate            int
	FFTSize               int
	SmoothingTimeConstant float64
	Scheme                BandScheme
	// Enabled lists the categories that may be detected. Empty enables all.
	Enabled     []SoundCategory
	Calibration Calibration
}

// DefaultConfig returns the advanced four-band configuration.
func DefaultConfig() Config {
	return Config{
		DetectionThreshold:    DefaultDetectionThreshold,
		Cooldown:              DefaultCooldown,
		SampleRate:            audiocore.DefaultSampleRate,
		FFTSize:               SchemeAdvanced.FFTSize(),
		SmoothingTimeConstant: audiocore.DefaultSmoothingTimeConstant,
		Scheme:                SchemeAdvanced,
		Calibration:           DefaultCalibration(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []string

	if c.DetectionThreshold <= 0 || c.DetectionThreshold >= 1 {
		problems = append(problems, "detection threshold must be within (0,1)")
	}
	if c.Cooldown < 0 {
		problems = append(problems, "cooldown must not be negative")
	}
	if c.SampleRate <= 0 {
		problems = append(problems, "sample rate must be positive")
	}
	if c.FFTSize != audiocore.FFTSizeAdvanced && c.FFTSize != audiocore.FFTSizeSimplified {
		problems = append(problems, "fft size must be 2048 or 4096")
	}
	if c.SmoothingTimeConstant < 0 || c.SmoothingTimeConstant > 1 {
		problems = append(problems, "smoothing time constant must be within [0,1]")
	}
	if _, err := ParseBandScheme(string(c.Scheme)); err != nil {
		problems = append(problems, err.Error())
	} else if c.FFTSize != c.Scheme.FFTSize() {
		problems = append(problems, fmt.Sprintf("fft size %d does not match the %s scheme (%d)", c.FFTSize, c.Scheme, c.Scheme.FFTSize()))
	}
	for _, p := range c.Calibration.Problems() {
		problems = append(problems, "calibration "+p)
	}
	for _, cat := range c.Enabled {
		if !slices.Contains(AllCategories, cat) {
			problems = append(problems, "unknown enabled category "+string(cat))
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return errors.Newf("invalid classifier config: %v", problems).
		Component("classifier").
		Category(errors.CategoryValidation).
		Context("problems", problems).
		Build()
}

// enabledSet returns nil when every category is enabled.
func (c *Config) enabledSet() map[SoundCategory]bool {
	if len(c.Enabled) == 0 {
		return nil
	}
	set := make(map[SoundCategory]bool, len(c.Enabled))
	for _, cat := range c.Enabled {
		set[cat] = true
	}
	return set
}

// Constraints returns the capture constraints matching this configuration.
// Raw capture keeps the spectral shape intact, so echo cancellation and
// noise suppression stay off.
func (c *Config) Constraints() audiocore.Constraints {
	return audiocore.Constraints{
		SampleRate:            c.SampleRate,
		Channels:              1,
		FFTSize:               c.FFTSize,
		SmoothingTimeConstant: c.SmoothingTimeConstant,
		AnalysisRate:          audiocore.DefaultAnalysisRate,
	}
}
