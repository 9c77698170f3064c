package alert

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/withu/internal/logger"
)

// Haptics produces a single heavy vibration pulse.
type Haptics interface {
	Pulse(ctx context.Context) error
}

// Flasher switches the screen or torch flash.
type Flasher interface {
	SetFlash(on bool) error
}

// Speaker plays text as speech. Speak blocks until playback ends or ctx is
// cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string, opts SpeechOptions) error
}

// Peripherals groups the output devices. Nil members are skipped.
type Peripherals struct {
	Haptics Haptics
	Flasher Flasher
	Speaker Speaker
}

// consoleOutput writes peripheral activity to a terminal.
type consoleOutput struct {
	mu  sync.Mutex
	w   io.Writer
	log logger.Logger

	wordDuration time.Duration
}

// NewConsolePeripherals returns terminal stand-ins for the phone
// peripherals: pulses and flashes are printed, speech is printed and then
// held for roughly the time it would take to say.
func NewConsolePeripherals(w io.Writer) Peripherals {
	c := &consoleOutput{w: w, log: GetLogger(), wordDuration: 350 * time.Millisecond}
	return Peripherals{Haptics: c, Flasher: c, Speaker: c}
}

func (c *consoleOutput) printf(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, format, args...)
	return err
}

func (c *consoleOutput) Pulse(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.printf("\a")
}

func (c *consoleOutput) SetFlash(on bool) error {
	if on {
		return c.printf("\x1b[7m  !!  \x1b[0m\r")
	}
	return c.printf("      \r")
}

func (c *consoleOutput) Speak(ctx context.Context, text string, opts SpeechOptions) error {
	if err := c.printf("\n>> %q\n", text); err != nil {
		return err
	}
	c.log.Debug("speaking assistance message",
		logger.Float64("rate", opts.Rate),
		logger.Float64("volume", opts.Volume))

	rate := opts.Rate
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(text))
	hold := time.Duration(float64(words) * float64(c.wordDuration) / rate)

	timer := time.NewTimer(hold)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
