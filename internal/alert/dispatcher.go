// Package alert turns detections into user-facing alerts: a vibration
// pulse train, a flashing screen and a spoken assistance message.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/events"
	"github.com/tphakala/withu/internal/logger"
)

// GetLogger returns the alert module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("alert")
}

// Alert is the overlay raised for a detection.
type Alert struct {
	ID         string                   `json:"id"`
	EventID    string                   `json:"eventId"`
	Type       classifier.SoundCategory `json:"type"`
	Title      string                   `json:"title"`
	Subtitle   string                   `json:"subtitle"`
	Confidence float64                  `json:"confidence"`
	Timestamp  time.Time                `json:"timestamp"`
	Dismissed  bool                     `json:"dismissed"`
}

// MonitorError is the last failure reported by the classifier.
type MonitorError struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher consumes classifier output from the event bus and drives the
// peripherals. Close it to stop any running pattern.
type Dispatcher struct {
	cfg     Config
	out     Peripherals
	history *History
	log     logger.Logger

	mu           sync.Mutex
	active       *Alert
	stopPatterns context.CancelFunc
	stopSpeech   context.CancelFunc
	speechGen    uint64
	lastErr      *MonitorError
	closed       bool

	wg sync.WaitGroup
}

var _ events.Consumer = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, out Peripherals) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		cfg:     cfg,
		out:     out,
		history: NewHistory(cfg.HistorySize),
		log:     GetLogger(),
	}, nil
}

// Name implements events.Consumer.
func (d *Dispatcher) Name() string { return "alert-dispatcher" }

// OnDetection implements events.Consumer. Every event lands in the
// history; an alert is raised only when AutoAlert is on.
func (d *Dispatcher) OnDetection(event classifier.DetectionEvent) error {
	d.history.Add(event)
	if !d.cfg.AutoAlert {
		return nil
	}
	_, err := d.Trigger(event)
	return err
}

// OnError implements events.Consumer.
func (d *Dispatcher) OnError(kind classifier.ErrorKind, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	d.mu.Lock()
	d.lastErr = &MonitorError{Kind: kind.String(), Message: msg, Timestamp: time.Now()}
	d.mu.Unlock()

	d.log.Warn("monitoring failure reported",
		logger.String("kind", kind.String()),
		logger.String("message", msg))
	return nil
}

// Trigger raises an alert for event, replacing any current alert.
func (d *Dispatcher) Trigger(event classifier.DetectionEvent) (Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Alert{}, errors.Newf("alert dispatcher is closed").
			Component("alert").
			Category(errors.CategoryState).
			Build()
	}

	d.stopPatternsLocked()

	a := Alert{
		ID:         uuid.NewString(),
		EventID:    event.ID,
		Type:       event.Type,
		Title:      event.Type.Title(),
		Subtitle:   event.Type.Subtitle(),
		Confidence: event.Confidence,
		Timestamp:  event.Timestamp,
	}
	d.active = &a

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Duration)
	d.stopPatterns = cancel

	if d.cfg.Vibration && d.out.Haptics != nil {
		d.wg.Go(func() { d.vibrate(ctx) })
	}
	if d.cfg.Flash && d.out.Flasher != nil {
		d.wg.Go(func() { d.flash(ctx) })
	}
	if d.cfg.Sound {
		d.startSpeechLocked()
	}

	d.log.Info("alert raised",
		logger.String("alert_id", a.ID),
		logger.String("type", string(a.Type)),
		logger.Float64("confidence", a.Confidence))
	return a, nil
}

// vibrate pulses immediately, then every PulseInterval until ctx ends.
func (d *Dispatcher) vibrate(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PulseInterval)
	defer ticker.Stop()

	for {
		if err := d.out.Haptics.Pulse(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn("vibration pulse failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// flash lights the flash for FlashOn at the start of every FlashInterval.
func (d *Dispatcher) flash(ctx context.Context) {
	defer d.setFlash(false)

	ticker := time.NewTicker(d.cfg.FlashInterval)
	defer ticker.Stop()
	off := time.NewTimer(d.cfg.FlashOn)
	defer off.Stop()

	for {
		d.setFlash(true)
		off.Reset(d.cfg.FlashOn)

		select {
		case <-ctx.Done():
			return
		case <-off.C:
			d.setFlash(false)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) setFlash(on bool) {
	if err := d.out.Flasher.SetFlash(on); err != nil {
		d.log.Warn("flash toggle failed", logger.Bool("on", on), logger.Error(err))
	}
}

// startSpeechLocked restarts the assistance message.
func (d *Dispatcher) startSpeechLocked() {
	if d.out.Speaker == nil {
		return
	}
	if d.stopSpeech != nil {
		d.stopSpeech()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.stopSpeech = cancel
	d.speechGen++
	gen := d.speechGen

	d.wg.Go(func() {
		defer cancel()

		err := d.out.Speaker.Speak(ctx, d.cfg.Message, d.cfg.Speech)
		if err != nil && ctx.Err() == nil {
			d.log.Error("failed to play assistance message", logger.Error(errors.New(err).
				Component("alert").
				Category(errors.CategoryAlert).
				Build()))
		}

		d.mu.Lock()
		if d.speechGen == gen {
			d.stopSpeech = nil
		}
		d.mu.Unlock()
	})
}

// PlayAssistance speaks the assistance message on demand. It is a no-op
// while the message is already playing.
func (d *Dispatcher) PlayAssistance() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.Newf("alert dispatcher is closed").
			Component("alert").
			Category(errors.CategoryState).
			Build()
	}
	if d.out.Speaker == nil {
		return errors.Newf("no speaker available").
			Component("alert").
			Category(errors.CategoryAlert).
			Build()
	}
	if d.stopSpeech != nil {
		return nil
	}
	d.startSpeechLocked()
	return nil
}

// StopAssistance cancels the assistance message if it is playing.
func (d *Dispatcher) StopAssistance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopSpeechLocked()
}

// Speaking reports whether the assistance message is playing.
func (d *Dispatcher) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopSpeech != nil
}

func (d *Dispatcher) stopSpeechLocked() {
	if d.stopSpeech != nil {
		d.stopSpeech()
		d.stopSpeech = nil
	}
}

func (d *Dispatcher) stopPatternsLocked() {
	if d.stopPatterns != nil {
		d.stopPatterns()
		d.stopPatterns = nil
	}
}

// Dismiss clears the current alert and stops every peripheral.
func (d *Dispatcher) Dismiss() (Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopPatternsLocked()
	d.stopSpeechLocked()

	if d.active == nil {
		return Alert{}, false
	}
	dismissed := *d.active
	dismissed.Dismissed = true
	d.active = nil

	d.log.Info("alert dismissed", logger.String("alert_id", dismissed.ID))
	return dismissed, true
}

// Active returns the current alert.
func (d *Dispatcher) Active() (Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return Alert{}, false
	}
	return *d.active, true
}

// LastError returns the most recent monitoring failure.
func (d *Dispatcher) LastError() (MonitorError, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastErr == nil {
		return MonitorError{}, false
	}
	return *d.lastErr, true
}

// History returns recent detections, newest first.
func (d *Dispatcher) History() []classifier.DetectionEvent {
	return d.history.List()
}

// Close stops all peripherals and waits for their goroutines.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.stopPatternsLocked()
	d.stopSpeechLocked()
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
