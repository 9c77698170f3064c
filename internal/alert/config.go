package alert

import (
	"time"

	"github.com/tphakala/withu/internal/errors"
)

// DefaultMessage is spoken by the assistance button and on sound alerts.
const DefaultMessage = "Take me with you, don't leave me behind."

// Config controls how detections are turned into alerts.
type Config struct {
	AutoAlert bool // raise an alert for every detection
	Vibration bool
	Flash     bool
	Sound     bool

	Message string

	// Duration bounds the vibration and flash patterns.
	Duration      time.Duration
	PulseInterval time.Duration
	FlashInterval time.Duration
	FlashOn       time.Duration

	Speech SpeechOptions

	HistorySize int
}

// SpeechOptions tune the assistance message playback.
type SpeechOptions struct {
	Rate   float64
	Volume float64
	Pitch  float64
}

// DefaultConfig returns the stock alert behaviour: every peripheral on,
// patterns for 30 seconds, the last 10 events kept.
func DefaultConfig() Config {
	return Config{
		AutoAlert:     true,
		Vibration:     true,
		Flash:         true,
		Sound:         true,
		Message:       DefaultMessage,
		Duration:      30 * time.Second,
		PulseInterval: 500 * time.Millisecond,
		FlashInterval: 500 * time.Millisecond,
		FlashOn:       100 * time.Millisecond,
		Speech:        SpeechOptions{Rate: 0.8, Volume: 1.0, Pitch: 1.0},
		HistorySize:   10,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []string

	if c.Duration <= 0 {
		problems = append(problems, "duration must be positive")
	}
	if c.PulseInterval <= 0 || c.FlashInterval <= 0 {
		problems = append(problems, "pattern intervals must be positive")
	}
	if c.FlashOn <= 0 || c.FlashOn >= c.FlashInterval {
		problems = append(problems, "flash on time must be positive and shorter than the flash interval")
	}
	if c.Speech.Rate <= 0 {
		problems = append(problems, "speech rate must be positive")
	}
	if c.Speech.Volume < 0 || c.Speech.Volume > 1 {
		problems = append(problems, "speech volume must be within [0,1]")
	}
	if c.HistorySize < 1 {
		problems = append(problems, "history size must be at least 1")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid alert config: %v", problems).
		Component("alert").
		Category(errors.CategoryValidation).
		Context("problems", problems).
		Build()
}
