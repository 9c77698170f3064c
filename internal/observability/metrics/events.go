package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/withu/internal/events"
)

// StatsFunc returns a snapshot of event bus counters.
type StatsFunc func() events.Stats

// EventBusMetrics exports event bus counters, read at scrape time.
type EventBusMetrics struct {
	collectors []prometheus.Collector
}

// NewEventBusMetrics registers counters backed by stats.
func NewEventBusMetrics(registry prometheus.Registerer, stats StatsFunc) (*EventBusMetrics, error) {
	counter := func(name, help string, get func(events.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(get(stats())) },
		)
	}

	m := &EventBusMetrics{collectors: []prometheus.Collector{
		counter("withu_eventbus_events_received_total", "Events accepted by the event bus",
			func(s events.Stats) uint64 { return s.EventsReceived }),
		counter("withu_eventbus_events_processed_total", "Successful consumer deliveries",
			func(s events.Stats) uint64 { return s.EventsProcessed }),
		counter("withu_eventbus_events_dropped_total", "Events dropped because the queue was full",
			func(s events.Stats) uint64 { return s.EventsDropped }),
		counter("withu_eventbus_consumer_errors_total", "Consumer failures and panics",
			func(s events.Stats) uint64 { return s.ConsumerErrors }),
		counter("withu_eventbus_levels_dropped_total", "Sound level updates skipped by slow subscribers",
			func(s events.Stats) uint64 { return s.LevelsDropped }),
	}}

	for _, c := range m.collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register event bus metrics: %w", err)
		}
	}
	return m, nil
}
