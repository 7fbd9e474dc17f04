package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/engine"
	"github.com/JakeFAU/addrcrawl/internal/store"
)

const (
	defaultRunLimit   = 50
	maxRunLimit       = 500
	defaultSitesLimit = 100
	maxSitesLimit     = 1000
	progressTimeout   = 3 * time.Second
)

// ProgressHandler exposes read-only run history endpoints.
type ProgressHandler struct {
	repo    store.ProgressRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the repository and logger.
func NewProgressHandler(repo store.ProgressRepository, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns
// {"runs": [...]} on success, 400 for invalid filters, 503 when the repo is
// unavailable, or 500 if the repository call fails.
func (h *ProgressHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.RunStatus
	if statusParam := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); statusParam != "" {
		parsed, parseErr := store.ParseRunStatus(statusParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

// GetRun handles GET /v1/runs/{run_id}: 400 for malformed IDs, 404 when the
// repository reports store.ErrNotFound.
func (h *ProgressHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// ListRunSites handles GET /v1/runs/{run_id}/sites?limit=&offset=.
func (h *ProgressHandler) ListRunSites(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSitesLimit, maxSitesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sites, err := h.repo.ListRunSites(ctx, runID, limit, offset)
	if err != nil {
		h.logger.Error("list run sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list run sites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": toSiteDTOs(sites)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func toRunDTOs(in []store.Run) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run store.Run) runDTO {
	return runDTO{
		ID:              run.ID.String(),
		Source:          run.Source,
		Workers:         run.Workers,
		Status:          string(run.Status),
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		TotalSites:      run.TotalSites,
		TotalUnique:     run.TotalUnique,
		TotalResponsive: run.TotalResponsive,
		TotalUnfound:    run.TotalUnfound,
		TotalBytes:      run.TotalBytes,
		Note:            run.Note,
	}
}

func toSiteDTOs(in []store.SiteStats) []siteDTO {
	out := make([]siteDTO, 0, len(in))
	for _, s := range in {
		out = append(out, siteDTO{
			Site:       s.Site,
			LastUpdate: s.LastUpdate,
			Items:      s.Items,
			Unique:     s.Unique,
			Downloaded: s.Downloaded,
			Bytes:      s.Bytes,
		})
	}
	return out
}

func toStatsDTO(live engine.LiveStats) statsDTO {
	return statsDTO{
		RunID:     live.RunID,
		Workers:   live.Workers,
		Running:   live.Running,
		StartedAt: live.StartedAt,
		ElapsedMS: live.Elapsed.Milliseconds(),
		Queued:    live.Queued,
		InFlight:  live.Stats.InFlight,
		Popped:    live.Stats.Popped,
		Completed: live.Stats.Completed,
		Sites:     live.Stats.Sites,
		Unique:    live.Stats.Unique,
		Responses: live.Stats.Responses,
		Unfound:   live.Stats.Unfound,
		Bytes:     live.Stats.Bytes,
		Outcomes:  live.Stats.Outcomes,
	}
}

type runDTO struct {
	ID              string     `json:"id"`
	Source          string     `json:"source,omitempty"`
	Workers         int        `json:"workers"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	TotalSites      int64      `json:"total_sites"`
	TotalUnique     int64      `json:"total_unique_sites"`
	TotalResponsive int64      `json:"total_responsive_sites"`
	TotalUnfound    int64      `json:"total_unfound"`
	TotalBytes      int64      `json:"total_bytes_downloaded"`
	Note            *string    `json:"note,omitempty"`
}

type siteDTO struct {
	Site       string    `json:"site"`
	LastUpdate time.Time `json:"last_update"`
	Items      int64     `json:"items"`
	Unique     int64     `json:"unique"`
	Downloaded int64     `json:"downloaded"`
	Bytes      int64     `json:"bytes"`
}

type statsDTO struct {
	RunID     string                    `json:"run_id"`
	Workers   int                       `json:"workers"`
	Running   bool                      `json:"running"`
	StartedAt time.Time                 `json:"started_at"`
	ElapsedMS int64                     `json:"elapsed_ms"`
	Queued    int                       `json:"queued"`
	InFlight  int64                     `json:"in_flight"`
	Popped    int64                     `json:"popped"`
	Completed int64                     `json:"completed"`
	Sites     int64                     `json:"sites"`
	Unique    int64                     `json:"unique"`
	Responses int64                     `json:"responses"`
	Unfound   int64                     `json:"unfound"`
	Bytes     int64                     `json:"bytes"`
	Outcomes  map[crawler.Outcome]int64 `json:"outcomes,omitempty"`
}
