package crawler

import (
	"time"
)

// Outcome is the terminal state an item reaches after processing.
type Outcome string

// Terminal item outcomes. Every item reaches exactly one.
const (
	OutcomeMalformed      Outcome = "malformed"
	OutcomeUnresolved     Outcome = "unresolved"
	OutcomeResolveFailed  Outcome = "resolve_failed"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeRejected       Outcome = "rejected"
	OutcomeDownloaded     Outcome = "downloaded"
	OutcomeDownloadFailed Outcome = "download_failed"
	OutcomeCanceled       Outcome = "canceled"
)

// Outcomes lists every terminal outcome in a stable order.
var Outcomes = []Outcome{
	OutcomeMalformed,
	OutcomeUnresolved,
	OutcomeResolveFailed,
	OutcomeDuplicate,
	OutcomeRejected,
	OutcomeDownloaded,
	OutcomeDownloadFailed,
	OutcomeCanceled,
}

// DefaultByteCeiling is the largest declared or actual body size eligible for download.
const DefaultByteCeiling int64 = 5000

// ProbeResult is returned by a header-only existence check.
type ProbeResult struct {
	StatusCode int
	// ContentLength is the declared body size, or -1 when the server did not declare one.
	ContentLength int64
}

// OK reports whether the probe returned a 2xx status.
func (p ProbeResult) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Result is the aggregate record of one crawl run.
type Result struct {
	RunID                string            `json:"run_id"`
	Source               string            `json:"source,omitempty"`
	Workers              int               `json:"workers"`
	TotalSites           int64             `json:"total_sites"`
	TotalUniqueSites     int64             `json:"total_unique_sites"`
	TotalResponsiveSites int64             `json:"total_responsive_sites"`
	TotalUnfound         int64             `json:"total_unfound"`
	TotalBytesDownloaded int64             `json:"total_bytes_downloaded"`
	TotalTime            time.Duration     `json:"total_time"`
	StartedAt            time.Time         `json:"started_at"`
	FinishedAt           time.Time         `json:"finished_at"`
	Canceled             bool              `json:"canceled"`
	Outcomes             map[Outcome]int64 `json:"outcomes,omitempty"`
}
