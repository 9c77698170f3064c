package classifier

import "time"

// SoundCategory is the closed set of recognised sound types.
type SoundCategory string

const (
	CategoryFireAlarm     SoundCategory = "fire_alarm"
	CategorySmokeDetector SoundCategory = "smoke_detector"
	CategorySiren         SoundCategory = "siren"
	// CategoryEmergency is the catch-all used when no matcher is specific.
	CategoryEmergency SoundCategory = "emergency"
)

// AllCategories lists the matchable categories in tie-break priority order.
var AllCategories = []SoundCategory{CategorySiren, CategoryFireAlarm, CategorySmokeDetector}

// ParseCategory converts a configuration string into a SoundCategory.
func ParseCategory(s string) (SoundCategory, bool) {
	switch c := SoundCategory(s); c {
	case CategoryFireAlarm, CategorySmokeDetector, CategorySiren, CategoryEmergency:
		return c, true
	}
	return "", false
}

// Title returns the alert headline for the category.
func (c SoundCategory) Title() string {
	switch c {
	case CategoryFireAlarm:
		return "FIRE ALARM DETECTED"
	case CategorySmokeDetector:
		return "SMOKE DETECTOR"
	case CategorySiren:
		return "EMERGENCY SIREN"
	default:
		return "EMERGENCY ALERT"
	}
}

// Subtitle returns the instruction line shown under the alert headline.
func (c SoundCategory) Subtitle() string {
	switch c {
	case CategoryFireAlarm:
		return "Evacuate immediately"
	case CategorySmokeDetector:
		return "Fire hazard detected"
	case CategorySiren:
		return "Emergency vehicle nearby"
	default:
		return "Immediate attention required"
	}
}

// DetectionCandidate is one matcher's verdict for a single tick.
type DetectionCandidate struct {
	Type       SoundCategory `json:"type"`
	Confidence float64       `json:"confidence"`
}

// DetectionEvent is emitted when a candidate clears the threshold and the
// cooldown window. It is immutable once emitted.
type DetectionEvent struct {
	ID         string        `json:"id"`
	Type       SoundCategory `json:"type"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`
	SoundLevel float64       `json:"soundLevel"`
}

// State is the Arbiter lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v != v: // NaN
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// clampUnit limits a confidence to [0,1].
func clampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}
