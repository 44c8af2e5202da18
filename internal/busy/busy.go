// Package busy tracks operations that keep the console's loading indicator on.
package busy

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"rocket-console/internal/metrics"
)

// Counter is a non-negative count of in-flight operations. The indicator is
// shown while it is above zero.
type Counter struct {
	n     atomic.Int64
	gauge prometheus.Gauge
}

// NewCounter returns a counter mirrored to gauge. gauge may be nil.
func NewCounter(gauge prometheus.Gauge) *Counter {
	return &Counter{gauge: gauge}
}

var global = NewCounter(metrics.InFlight)

// Global is the process-wide counter.
func Global() *Counter { return global }

// Acquire increments the counter and returns the matching release. Calling
// release more than once has no further effect.
func (c *Counter) Acquire() (release func()) {
	c.n.Add(1)
	if c.gauge != nil {
		c.gauge.Inc()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.n.Add(-1)
			if c.gauge != nil {
				c.gauge.Dec()
			}
		})
	}
}

// Do holds the counter for the duration of fn.
func (c *Counter) Do(fn func() error) error {
	release := c.Acquire()
	defer release()
	return fn()
}

// Count returns the number of in-flight operations.
func (c *Counter) Count() int64 { return c.n.Load() }

// Busy reports whether the loading indicator should be visible.
func (c *Counter) Busy() bool { return c.Count() > 0 }
