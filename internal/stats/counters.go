package stats

import (
	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

// Counters is the shared statistics block of one crawl run. Every field is
// updated with atomic increments only.
//
// Unique counts items that grew the address set. It is fixed at the dedup
// step, so an item canceled later during its HTTP requests still counts
// as unique while its outcome is canceled.
type Counters struct {
	Sites     Counter
	Unique    Counter
	Responses Counter
	Unfound   Counter
	Bytes     Counter

	Popped    Counter
	Completed Counter
	InFlight  Gauge

	outcomes map[crawler.Outcome]*Counter
}

// NewCounters returns zeroed counters with one slot per terminal outcome.
func NewCounters() *Counters {
	c := &Counters{outcomes: make(map[crawler.Outcome]*Counter, len(crawler.Outcomes))}
	for _, o := range crawler.Outcomes {
		c.outcomes[o] = &Counter{}
	}
	return c
}

// Record counts an item's terminal outcome and marks it completed.
func (c *Counters) Record(outcome crawler.Outcome) {
	if counter, ok := c.outcomes[outcome]; ok {
		counter.Inc()
	}
	c.Completed.Inc()
}

// Outcome returns the count recorded for a single outcome.
func (c *Counters) Outcome(outcome crawler.Outcome) int64 {
	if counter, ok := c.outcomes[outcome]; ok {
		return counter.Load()
	}
	return 0
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Sites     int64                     `json:"sites"`
	Unique    int64                     `json:"unique"`
	Responses int64                     `json:"responses"`
	Unfound   int64                     `json:"unfound"`
	Bytes     int64                     `json:"bytes"`
	Popped    int64                     `json:"popped"`
	Completed int64                     `json:"completed"`
	InFlight  int64                     `json:"in_flight"`
	Outcomes  map[crawler.Outcome]int64 `json:"outcomes"`
}

// Snapshot reads every counter. Individual reads are atomic; the snapshot as a
// whole is not a consistent cut while workers are running.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Sites:     c.Sites.Load(),
		Unique:    c.Unique.Load(),
		Responses: c.Responses.Load(),
		Unfound:   c.Unfound.Load(),
		Bytes:     c.Bytes.Load(),
		Popped:    c.Popped.Load(),
		Completed: c.Completed.Load(),
		InFlight:  c.InFlight.Load(),
		Outcomes:  make(map[crawler.Outcome]int64, len(c.outcomes)),
	}
	for o, counter := range c.outcomes {
		if v := counter.Load(); v > 0 {
			s.Outcomes[o] = v
		}
	}
	return s
}
