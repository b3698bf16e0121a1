package metrics

import "time"

type Metrics interface {
	Increment(string)
	Duration(string, time.Duration)
	Gauge(string, int)
}

// Noop is used when no statsd address is configured.
type Noop struct{}

func (Noop) Increment(string)               {}
func (Noop) Duration(string, time.Duration) {}
func (Noop) Gauge(string, int)              {}
