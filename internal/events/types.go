// Package events fans classifier output out to independent consumers.
//
// The classifier calls its Sink synchronously on the analysis goroutine, so
// anything slow (alerts, notifications, HTTP streams) must not run there.
// Bus implements classifier.Sink: detections and errors are queued and
// delivered in order by a single worker, while sound level updates are
// broadcast as latest-value samples that slow subscribers may miss.
package events

import (
	"github.com/tphakala/withu/internal/classifier"
)

// Consumer receives queued classifier output.
type Consumer interface {
	// Name identifies the consumer in logs.
	Name() string

	// OnDetection handles one detection event.
	OnDetection(event classifier.DetectionEvent) error

	// OnError handles a monitoring failure.
	OnError(kind classifier.ErrorKind, err error) error
}

// EventKind tags queued events.
type EventKind int

const (
	KindDetection EventKind = iota
	KindError
)

// Event is one queued item.
type Event struct {
	Kind      EventKind
	Detection classifier.DetectionEvent
	ErrorKind classifier.ErrorKind
	Err       error
}

// Stats contains runtime statistics for monitoring.
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
	LevelsPublished uint64
	LevelsDropped   uint64
}

// ConsumerFuncs adapts functions to Consumer. Nil fields are skipped.
type ConsumerFuncs struct {
	ConsumerName string
	Detection    func(classifier.DetectionEvent) error
	Error        func(classifier.ErrorKind, error) error
}

func (c ConsumerFuncs) Name() string { return c.ConsumerName }

func (c ConsumerFuncs) OnDetection(event classifier.DetectionEvent) error {
	if c.Detection == nil {
		return nil
	}
	return c.Detection(event)
}

func (c ConsumerFuncs) OnError(kind classifier.ErrorKind, err error) error {
	if c.Error == nil {
		return nil
	}
	return c.Error(kind, err)
}
