package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// Config holds event bus configuration.
type Config struct {
	BufferSize int
}

// DefaultConfig returns the default event bus configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

// GetLogger returns the events module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}

// Bus is the classifier.Sink used by the monitor. Create it with NewBus; it
// starts its worker immediately.
type Bus struct {
	// sendMu guards the queue against close while a publisher is sending.
	sendMu  sync.RWMutex
	queue   chan Event
	closed  bool
	done    chan struct{}
	running atomic.Bool

	mu        sync.Mutex
	consumers []Consumer

	subMu       sync.RWMutex
	subscribers map[uint64]chan float64
	nextSub     uint64

	stats struct {
		received, processed, dropped, consumerErrors atomic.Uint64
		levelsPublished, levelsDropped               atomic.Uint64
	}

	log logger.Logger
}

var _ classifier.Sink = (*Bus)(nil)

// NewBus creates and starts a bus.
func NewBus(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	b := &Bus{
		queue:       make(chan Event, cfg.BufferSize),
		done:        make(chan struct{}),
		subscribers: make(map[uint64]chan float64),
		log:         GetLogger(),
	}
	b.running.Store(true)
	go b.worker()

	b.log.Debug("event bus started", logger.Int("buffer_size", cfg.BufferSize))
	return b
}

// RegisterConsumer adds a consumer. Names must be unique.
func (b *Bus) RegisterConsumer(c Consumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == c.Name() {
			return errors.Newf("consumer %s already registered", c.Name()).
				Component("events").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	b.consumers = append(b.consumers, c)

	b.log.Info("registered event consumer", logger.String("consumer", c.Name()))
	return nil
}

// TryPublish queues an event without blocking. It returns false when the
// queue is full or the bus is shut down.
func (b *Bus) TryPublish(e Event) bool {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	if b.closed {
		return false
	}

	select {
	case b.queue <- e:
		b.stats.received.Add(1)
		return true
	default:
		b.stats.dropped.Add(1)
		b.log.Warn("event dropped due to full buffer", logger.Int("kind", int(e.Kind)))
		return false
	}
}

// OnDetection implements classifier.Sink.
func (b *Bus) OnDetection(event classifier.DetectionEvent) {
	b.TryPublish(Event{Kind: KindDetection, Detection: event})
}

// OnError implements classifier.Sink.
func (b *Bus) OnError(kind classifier.ErrorKind, err error) {
	b.TryPublish(Event{Kind: KindError, ErrorKind: kind, Err: err})
}

// OnSoundLevel implements classifier.Sink. It offers the level to every
// subscriber without blocking. Levels are not retained; the current level
// is Arbiter.SoundLevel.
func (b *Bus) OnSoundLevel(level float64) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- level:
			b.stats.levelsPublished.Add(1)
		default:
			b.stats.levelsDropped.Add(1)
		}
	}
}

// SubscribeLevels returns a channel receiving sound level updates and a
// function that unsubscribes and closes it. buffer is clamped to at least 1.
func (b *Bus) SubscribeLevels(buffer int) (levels <-chan float64, cancel func()) {
	ch := make(chan float64, max(buffer, 1))

	b.subMu.Lock()
	if !b.running.Load() {
		b.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextSub
	b.nextSub++
	b.subscribers[id] = ch
	b.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subMu.Lock()
			defer b.subMu.Unlock()
			if c, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(c)
			}
		})
	}
}

func (b *Bus) worker() {
	defer close(b.done)
	for e := range b.queue {
		b.dispatch(e)
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, c := range consumers {
		b.deliver(c, e)
	}
}

func (b *Bus) deliver(c Consumer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.stats.consumerErrors.Add(1)
			b.log.Error("consumer panicked",
				logger.String("consumer", c.Name()),
				logger.Any("panic", r))
		}
	}()

	var err error
	switch e.Kind {
	case KindDetection:
		err = c.OnDetection(e.Detection)
	case KindError:
		err = c.OnError(e.ErrorKind, e.Err)
	}

	if err != nil {
		b.stats.consumerErrors.Add(1)
		b.log.Error("consumer error",
			logger.String("consumer", c.Name()),
			logger.Error(err))
		return
	}
	b.stats.processed.Add(1)
}

// Shutdown stops accepting events, lets the worker drain the queue and
// closes all level subscriptions. It is safe to call more than once.
func (b *Bus) Shutdown(timeout time.Duration) error {
	b.sendMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.sendMu.Unlock()

	b.subMu.Lock()
	if b.running.Swap(false) {
		for id, ch := range b.subscribers {
			delete(b.subscribers, id)
			close(ch)
		}
	}
	b.subMu.Unlock()

	select {
	case <-b.done:
		b.log.Debug("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		b.log.Warn("event bus shutdown timeout exceeded", logger.Duration("timeout", timeout))
		return errors.Newf("event bus shutdown timeout exceeded").
			Component("events").
			Category(errors.CategoryTimeout).
			Context("timeout", timeout.String()).
			Build()
	}
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	return Stats{
		EventsReceived:  b.stats.received.Load(),
		EventsProcessed: b.stats.processed.Load(),
		EventsDropped:   b.stats.dropped.Load(),
		ConsumerErrors:  b.stats.consumerErrors.Load(),
		LevelsPublished: b.stats.levelsPublished.Load(),
		LevelsDropped:   b.stats.levelsDropped.Load(),
	}
}
