package classifier

// Calibration holds the empirical thresholds and weights of the matchers.
// They were tuned by ear rather than derived from acoustics and should be
// re-checked against real recordings before being trusted.
type Calibration struct {
	// Siren, advanced scheme
	SirenLowWeight    float64 `yaml:"sirenlowweight" mapstructure:"sirenlowweight"`
	SirenMidWeight    float64 `yaml:"sirenmidweight" mapstructure:"sirenmidweight"`
	SirenPatternNorm  float64 `yaml:"sirenpatternnorm" mapstructure:"sirenpatternnorm"`
	SirenPatternShare float64 `yaml:"sirenpatternshare" mapstructure:"sirenpatternshare"`
	SirenSweepShare   float64 `yaml:"sirensweepshare" mapstructure:"sirensweepshare"`
	PeakMinAmplitude  uint8   `yaml:"peakminamplitude" mapstructure:"peakminamplitude"`
	PeakMinSpacing    int     `yaml:"peakminspacing" mapstructure:"peakminspacing"`
	PeakSaturation    float64 `yaml:"peaksaturation" mapstructure:"peaksaturation"`

	// Fire alarm, advanced scheme
	FireMidMin  float64 `yaml:"firemidmin" mapstructure:"firemidmin"`
	FireHighMin float64 `yaml:"firehighmin" mapstructure:"firehighmin"`
	FireNorm    float64 `yaml:"firenorm" mapstructure:"firenorm"`

	// Smoke detector, advanced scheme
	SmokeVeryHighMin float64 `yaml:"smokeveryhighmin" mapstructure:"smokeveryhighmin"`
	SmokeNorm        float64 `yaml:"smokenorm" mapstructure:"smokenorm"`

	// Simplified scheme
	SimpleGateTotal    float64 `yaml:"simplegatetotal" mapstructure:"simplegatetotal"`
	SimpleFireMidMin   float64 `yaml:"simplefiremidmin" mapstructure:"simplefiremidmin"`
	SimpleFireHighMin  float64 `yaml:"simplefirehighmin" mapstructure:"simplefirehighmin"`
	SimpleFireNorm     float64 `yaml:"simplefirenorm" mapstructure:"simplefirenorm"`
	SimpleFireCap      float64 `yaml:"simplefirecap" mapstructure:"simplefirecap"`
	SimpleSmokeHighMin float64 `yaml:"simplesmokehighmin" mapstructure:"simplesmokehighmin"`
	SimpleSmokeMidMin  float64 `yaml:"simplesmokemidmin" mapstructure:"simplesmokemidmin"`
	SimpleSmokeNorm    float64 `yaml:"simplesmokenorm" mapstructure:"simplesmokenorm"`
	SimpleSmokeCap     float64 `yaml:"simplesmokecap" mapstructure:"simplesmokecap"`
	SimpleSirenLowMin  float64 `yaml:"simplesirenlowmin" mapstructure:"simplesirenlowmin"`
	SimpleSirenMidMin  float64 `yaml:"simplesirenmidmin" mapstructure:"simplesirenmidmin"`
	SimpleSirenNorm    float64 `yaml:"simplesirennorm" mapstructure:"simplesirennorm"`
	SimpleSirenCap     float64 `yaml:"simplesirencap" mapstructure:"simplesirencap"`
}

// DefaultCalibration returns the stock matcher constants.
func DefaultCalibration() Calibration {
	return Calibration{
		SirenLowWeight:    0.4,
		SirenMidWeight:    0.6,
		SirenPatternNorm:  150,
		SirenPatternShare: 0.7,
		SirenSweepShare:   0.3,
		PeakMinAmplitude:  80,
		PeakMinSpacing:    10,
		PeakSaturation:    10,

		FireMidMin:  60,
		FireHighMin: 100,
		FireNorm:    200,

		SmokeVeryHighMin: 120,
		SmokeNorm:        150,

		SimpleGateTotal:    50,
		SimpleFireMidMin:   100,
		SimpleFireHighMin:  80,
		SimpleFireNorm:     200,
		SimpleFireCap:      0.9,
		SimpleSmokeHighMin: 120,
		SimpleSmokeMidMin:  60,
		SimpleSmokeNorm:    150,
		SimpleSmokeCap:     0.85,
		SimpleSirenLowMin:  60,
		SimpleSirenMidMin:  80,
		SimpleSirenNorm:    180,
		SimpleSirenCap:     0.8,
	}
}

// Problems lists out-of-range constants by their config key. Norms must be
// positive so scores never divide by zero.
func (c Calibration) Problems() []string {
	var problems []string

	positive := []struct {
		key string
		v   float64
	}{
		{"sirenpatternnorm", c.SirenPatternNorm},
		{"peaksaturation", c.PeakSaturation},
		{"firenorm", c.FireNorm},
		{"smokenorm", c.SmokeNorm},
		{"simplefirenorm", c.SimpleFireNorm},
		{"simplesmokenorm", c.SimpleSmokeNorm},
		{"simplesirennorm", c.SimpleSirenNorm},
	}
	for _, f := range positive {
		if f.v <= 0 {
			problems = append(problems, f.key+" must be positive")
		}
	}

	unit := []struct {
		key string
		v   float64
	}{
		{"sirenlowweight", c.SirenLowWeight},
		{"sirenmidweight", c.SirenMidWeight},
		{"sirenpatternshare", c.SirenPatternShare},
		{"sirensweepshare", c.SirenSweepShare},
		{"simplefirecap", c.SimpleFireCap},
		{"simplesmokecap", c.SimpleSmokeCap},
		{"simplesirencap", c.SimpleSirenCap},
	}
	for _, f := range unit {
		if f.v < 0 || f.v > 1 {
			problems = append(problems, f.key+" must be within [0,1]")
		}
	}

	floors := []struct {
		key string
		v   float64
	}{
		{"firemidmin", c.FireMidMin},
		{"firehighmin", c.FireHighMin},
		{"smokeveryhighmin", c.SmokeVeryHighMin},
		{"simplegatetotal", c.SimpleGateTotal},
		{"simplefiremidmin", c.SimpleFireMidMin},
		{"simplefirehighmin", c.SimpleFireHighMin},
		{"simplesmokehighmin", c.SimpleSmokeHighMin},
		{"simplesmokemidmin", c.SimpleSmokeMidMin},
		{"simplesirenlowmin", c.SimpleSirenLowMin},
		{"simplesirenmidmin", c.SimpleSirenMidMin},
	}
	for _, f := range floors {
		if f.v < 0 {
			problems = append(problems, f.key+" must not be negative")
		}
	}

	if c.PeakMinSpacing < 1 {
		problems = append(problems, "peakminspacing must be at least 1")
	}
	return problems
}

// ScoreFunc maps frame features to a confidence in [0,1].
type ScoreFunc func(f Features) float64

// Matcher pairs a category with its scoring function.
type Matcher struct {
	Category SoundCategory
	Score    ScoreFunc
}

// Matchers is an ordered strategy table. Order is tie-break priority:
// earlier entries win exact ties.
type Matchers []Matcher

// DefaultMatchers returns the matcher table for a scheme in priority
// order siren, fire_alarm, smoke_detector.
func DefaultMatchers(scheme BandScheme, cal Calibration) Matchers {
	if scheme == SchemeSimplified {
		gate := func(score ScoreFunc) ScoreFunc {
			return func(f Features) float64 {
				if f.Bands.Total() < cal.SimpleGateTotal {
					return 0
				}
				return score(f)
			}
		}
		return Matchers{
			{Category: CategorySiren, Score: gate(cal.simpleSiren)},
			{Category: CategoryFireAlarm, Score: gate(cal.simpleFireAlarm)},
			{Category: CategorySmokeDetector, Score: gate(cal.simpleSmokeDetector)},
		}
	}
	return Matchers{
		{Category: CategorySiren, Score: cal.siren},
		{Category: CategoryFireAlarm, Score: cal.fireAlarm},
		{Category: CategorySmokeDetector, Score: cal.smokeDetector},
	}
}

// Filter returns the matchers whose category is enabled, keeping order.
// A nil set enables everything.
func (m Matchers) Filter(enabled map[SoundCategory]bool) Matchers {
	if enabled == nil {
		return m
	}
	out := make(Matchers, 0, len(m))
	for _, matcher := range m {
		if enabled[matcher.Category] {
			out = append(out, matcher)
		}
	}
	return out
}

// Evaluate runs every matcher and returns their clamped candidates in
// table order.
func (m Matchers) Evaluate(f Features) []DetectionCandidate {
	out := make([]DetectionCandidate, len(m))
	for i, matcher := range m {
		out[i] = DetectionCandidate{
			Type:       matcher.Category,
			Confidence: clampUnit(matcher.Score(f)),
		}
	}
	return out
}

// Select returns the candidate with the strictly highest confidence. The
// search starts from {emergency, 0} and only a strictly greater confidence
// replaces the current best, so earlier candidates win ties.
func Select(candidates []DetectionCandidate) DetectionCandidate {
	best := DetectionCandidate{Type: CategoryEmergency}
	for _, c := range candidates {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best
}

func (c Calibration) siren(f Features) float64 {
	pattern := (f.Bands.Low*c.SirenLowWeight + f.Bands.Mid*c.SirenMidWeight) / c.SirenPatternNorm
	sweep := c.sweepScore(f.Bins)
	return clampUnit(c.SirenPatternShare*pattern + c.SirenSweepShare*sweep)
}

// sweepScore counts local maxima above PeakMinAmplitude that sit more than
// PeakMinSpacing bins after the previous counted peak.
func (c Calibration) sweepScore(bins []uint8) float64 {
	peaks := 0
	last := -1
	for i := 1; i < len(bins)-1; i++ {
		v := bins[i]
		if v <= c.PeakMinAmplitude || v <= bins[i-1] || v <= bins[i+1] {
			continue
		}
		if last >= 0 && i-last <= c.PeakMinSpacing {
			continue
		}
		peaks++
		last = i
	}
	if c.PeakSaturation <= 0 {
		return 0
	}
	return min(float64(peaks)/c.PeakSaturation, 1)
}

func (c Calibration) fireAlarm(f Features) float64 {
	if f.Bands.Mid > c.FireMidMin && f.Bands.High > c.FireHighMin {
		return min(1, (f.Bands.High+f.Bands.Mid)/c.FireNorm)
	}
	return 0
}

func (c Calibration) smokeDetector(f Features) float64 {
	if f.Bands.VeryHigh > c.SmokeVeryHighMin {
		return min(1, f.Bands.VeryHigh/c.SmokeNorm)
	}
	return 0
}

func (c Calibration) simpleFireAlarm(f Features) float64 {
	if f.Bands.Mid > c.SimpleFireMidMin && f.Bands.High > c.SimpleFireHighMin {
		return min(c.SimpleFireCap, (f.Bands.Mid+f.Bands.High)/c.SimpleFireNorm)
	}
	return 0
}

func (c Calibration) simpleSmokeDetector(f Features) float64 {
	if f.Bands.High > c.SimpleSmokeHighMin && f.Bands.Mid > c.SimpleSmokeMidMin {
		return min(c.SimpleSmokeCap, f.Bands.High/c.SimpleSmokeNorm)
	}
	return 0
}

func (c Calibration) simpleSiren(f Features) float64 {
	if f.Bands.Low > c.SimpleSirenLowMin && f.Bands.Mid > c.SimpleSirenMidMin {
		return min(c.SimpleSirenCap, (f.Bands.Low+f.Bands.Mid)/c.SimpleSirenNorm)
	}
	return 0
}
