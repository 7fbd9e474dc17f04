package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the crawl_runs.status column.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunCanceled  RunStatus = "canceled"
)

// ParseRunStatus maps a query-string value onto a RunStatus.
func ParseRunStatus(input string) (RunStatus, error) {
	switch RunStatus(input) {
	case RunRunning, RunSucceeded, RunCanceled:
		return RunStatus(input), nil
	default:
		return "", errors.New("invalid status")
	}
}

// Run is one row of crawl_runs. Totals are zero until the run's result is stored.
type Run struct {
	ID              uuid.UUID
	Source          string
	Workers         int
	Status          RunStatus
	StartedAt       time.Time
	FinishedAt      *time.Time
	TotalSites      int64
	TotalUnique     int64
	TotalResponsive int64
	TotalUnfound    int64
	TotalBytes      int64
	Note            *string
}

// SiteStats aggregates item outcomes for one host within a run.
type SiteStats struct {
	RunID      uuid.UUID
	Site       string
	LastUpdate time.Time
	Items      int64
	Unique     int64
	Downloaded int64
	Bytes      int64
}

// SiteDelta is the increment applied to a SiteStats row.
type SiteDelta struct {
	Items      int64
	Unique     int64
	Downloaded int64
	Bytes      int64
}

// Empty reports whether applying the delta would change nothing.
func (d SiteDelta) Empty() bool {
	return d == SiteDelta{}
}

// ProgressRepository persists run lifecycle and per-site progress.
type ProgressRepository interface {
	// StartRun inserts the run as running; repeating it is a no-op.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// FinishRun records the terminal status of the run.
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, note *string) error
	// UpsertSiteStats adds delta to the (run, site) row, creating it if needed.
	UpsertSiteStats(ctx context.Context, runID uuid.UUID, site string, delta SiteDelta, at time.Time) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSites returns per-site aggregates for one run.
	ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SiteStats, error)
}
