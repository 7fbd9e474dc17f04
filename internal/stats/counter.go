// Package stats holds the atomically updated counters of a crawl run and the
// low-frequency reporter that logs them.
package stats

import "sync/atomic"

// Counter is a monotonically increasing atomic counter.
type Counter struct {
	v atomic.Int64
}

// Inc adds one and returns the new value.
func (c *Counter) Inc() int64 {
	return c.v.Add(1)
}

// Add adds n and returns the new value. Negative deltas are ignored.
func (c *Counter) Add(n int64) int64 {
	if n <= 0 {
		return c.v.Load()
	}
	return c.v.Add(n)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return c.v.Load()
}

// Gauge is an atomic up/down value for in-flight work.
type Gauge struct {
	v atomic.Int64
}

// Inc increments the gauge.
func (g *Gauge) Inc() {
	g.v.Add(1)
}

// Dec decrements the gauge.
func (g *Gauge) Dec() {
	g.v.Add(-1)
}

// Load returns the current value.
func (g *Gauge) Load() int64 {
	return g.v.Load()
}
