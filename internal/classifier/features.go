package classifier

import (
	"fmt"

	"github.com/tphakala/withu/internal/audiocore"
)

// soundLevelScale maps the mean byte magnitude onto the 0-100 meter.
const soundLevelScale = 0.8

// BandScheme selects how the spectrum is split into bands.
type BandScheme string

const (
	// SchemeAdvanced uses four bands between 200 Hz and 8 kHz at FFT size 4096.
	SchemeAdvanced BandScheme = "advanced"
	// SchemeSimplified uses three bands between 0 Hz and 8 kHz at FFT size 2048.
	SchemeSimplified BandScheme = "simplified"
)

// Band is a half-open frequency range [MinHz, MaxHz).
type Band struct {
	Name  string
	MinHz float64
	MaxHz float64
}

var (
	advancedBands = [...]Band{
		{Name: "low", MinHz: 200, MaxHz: 800},
		{Name: "mid", MinHz: 800, MaxHz: 2000},
		{Name: "high", MinHz: 2000, MaxHz: 4000},
		{Name: "very_high", MinHz: 4000, MaxHz: 8000},
	}
	simplifiedBands = [...]Band{
		{Name: "low", MinHz: 0, MaxHz: 500},
		{Name: "mid", MinHz: 500, MaxHz: 2000},
		{Name: "high", MinHz: 2000, MaxHz: 8000},
	}
)

// ParseBandScheme converts a configuration string into a BandScheme.
func ParseBandScheme(s string) (BandScheme, error) {
	switch BandScheme(s) {
	case SchemeAdvanced, "":
		return SchemeAdvanced, nil
	case SchemeSimplified:
		return SchemeSimplified, nil
	}
	return "", fmt.Errorf("unknown band scheme %q", s)
}

// Bands returns the band layout of the scheme.
func (s BandScheme) Bands() []Band {
	if s == SchemeSimplified {
		return simplifiedBands[:]
	}
	return advancedBands[:]
}

// FFTSize returns the transform size the scheme's thresholds were tuned for.
func (s BandScheme) FFTSize() int {
	if s == SchemeSimplified {
		return audiocore.FFTSizeSimplified
	}
	return audiocore.FFTSizeAdvanced
}

// BandEnergySummary holds the average magnitude of each band. VeryHigh is
// always zero under the simplified scheme.
type BandEnergySummary struct {
	Low      float64 `json:"low"`
	Mid      float64 `json:"mid"`
	High     float64 `json:"high"`
	VeryHigh float64 `json:"veryHigh"`
}

// Total returns the sum of all band energies.
func (b BandEnergySummary) Total() float64 {
	return b.Low + b.Mid + b.High + b.VeryHigh
}

// Features is everything the matchers need from one frame.
type Features struct {
	Bands      BandEnergySummary
	SoundLevel float64
	// Bins is the raw frame, used by the siren sweep heuristic.
	Bins []uint8
}

// BandEnergy returns the mean magnitude of the bins whose centre frequency
// lies in [minHz, maxHz), or 0 when no bin does.
func BandEnergy(frame audiocore.AudioFrame, minHz, maxHz float64) float64 {
	var sum, count int
	for i, v := range frame.Bins {
		freq := frame.BinFrequency(i)
		if freq >= maxHz {
			break
		}
		if freq < minHz {
			continue
		}
		sum += int(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// SoundLevel returns the mean bin magnitude scaled into [0,100].
func SoundLevel(frame audiocore.AudioFrame) float64 {
	if len(frame.Bins) == 0 {
		return 0
	}
	var sum int
	for _, v := range frame.Bins {
		sum += int(v)
	}
	return clamp(float64(sum)/float64(len(frame.Bins))*soundLevelScale, 0, 100)
}

// ExtractFeatures reduces a frame to band energies and a sound level.
func ExtractFeatures(frame audiocore.AudioFrame, scheme BandScheme) Features {
	bands := scheme.Bands()
	energies := make([]float64, len(bands))
	for i, b := range bands {
		energies[i] = BandEnergy(frame, b.MinHz, b.MaxHz)
	}

	summary := BandEnergySummary{Low: energies[0], Mid: energies[1], High: energies[2]}
	if len(energies) > 3 {
		summary.VeryHigh = energies[3]
	}

	return Features{
		Bands:      summary,
		SoundLevel: SoundLevel(frame),
		Bins:       frame.Bins,
	}
}
