package engine

import (
	"time"

	"github.com/JakeFAU/addrcrawl/internal/stats"
)

// LiveStats is a point-in-time view of the most recently started run.
type LiveStats struct {
	RunID     string         `json:"run_id"`
	Workers   int            `json:"workers"`
	StartedAt time.Time      `json:"started_at"`
	Running   bool           `json:"running"`
	Queued    int            `json:"queued"`
	Elapsed   time.Duration  `json:"elapsed"`
	Stats     stats.Snapshot `json:"stats"`
}

// Live reports the latest run's counters. ok is false before the first run.
func (e *Engine) Live() (LiveStats, bool) {
	r := e.live.Load()
	if r == nil {
		return LiveStats{}, false
	}
	running := !r.done.Load()
	queued := 0
	elapsed := time.Duration(r.elapsed.Load())
	if running {
		queued = r.queue.Len()
		elapsed = e.deps.Clock.Now().Sub(r.startedAt)
	}
	return LiveStats{
		RunID:     r.id,
		Workers:   r.workers,
		StartedAt: r.startedAt,
		Running:   running,
		Queued:    queued,
		Elapsed:   elapsed,
		Stats:     r.counters.Snapshot(),
	}, true
}
