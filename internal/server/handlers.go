package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/repositories"
	"github.com/groupmix/smartsort/internal/scheduler"
	"github.com/groupmix/smartsort/internal/shared"
)

// SortScheduler is the scheduler surface the HTTP layer needs.
type SortScheduler interface {
	Submit(ctx context.Context, req models.SortRequest) (*scheduler.Ticket, error)
	Await(ctx context.Context, id string) (scheduler.Job, error)
	Job(id string) (scheduler.Job, bool)
	Snapshot() models.QueueSnapshot
	EstimatedWait() time.Duration
}

// OrderReader reads stored sort orders.
type OrderReader interface {
	GetGroupOrder(groupID string) (*repositories.SortOrder, error)
	GetPlaylistOrders(groupID string) ([]repositories.SortOrder, error)
}

// RunReader reads the run metrics log.
type RunReader interface {
	RecentRuns(limit int) ([]models.RunMetrics, error)
	RunsForGroup(groupID string, limit int) ([]models.RunMetrics, error)
}

// SortHandler exposes the sort engine over HTTP. Routes are attached
// through Register so each endpoint keeps its own method and wildcard
// pattern.
type SortHandler struct {
	scheduler SortScheduler
	orders    OrderReader
	runs      RunReader
	logger    *log.Logger
}

// NewSortHandler creates the sort API handler.
func NewSortHandler(sched SortScheduler, orders OrderReader, runs RunReader, logger *log.Logger) *SortHandler {
	return &SortHandler{scheduler: sched, orders: orders, runs: runs, logger: logger}
}

// Register attaches every sort API route to the router.
func (h *SortHandler) Register(router Router) {
	router.Handle(http.MethodPost, "/api/groups/{id}/sort", http.HandlerFunc(h.submit))
	router.Handle(http.MethodGet, "/api/groups/{id}/order", http.HandlerFunc(h.order))
	router.Handle(http.MethodGet, "/api/sort/jobs/{id}", http.HandlerFunc(h.job))
	router.Handle(http.MethodGet, "/api/sort/status", http.HandlerFunc(h.status))
	router.Handle(http.MethodGet, "/api/sort/runs", http.HandlerFunc(h.listRuns))
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(h.health))
}

// submitRequest is the POST body for a sort submission.
type submitRequest struct {
	Mode      models.SortMode `json:"mode"`
	SkipAI    bool            `json:"skip_ai"`
	SkipQueue bool            `json:"skip_queue"`
	// Wait makes the submission synchronous: the response carries the
	// finished result instead of a ticket.
	Wait bool `json:"wait"`
}

// submit handles POST /api/groups/{id}/sort.
func (h *SortHandler) submit(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Mode == "" {
		body.Mode = models.ModeAll
	}

	req := models.SortRequest{
		GroupID:     r.PathValue("id"),
		UserID:      r.Header.Get("X-User-ID"),
		Mode:        body.Mode,
		SkipAI:      body.SkipAI,
		SkipQueue:   body.SkipQueue,
		SubmittedAt: time.Now(),
	}

	ticket, err := h.scheduler.Submit(r.Context(), req)
	if err != nil {
		h.submitError(w, err)
		return
	}

	if !body.Wait {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":            ticket.JobID,
			"estimated_wait_ms": ticket.EstimatedWait.Milliseconds(),
			"health_score":      ticket.HealthScore,
			"degraded":          ticket.Degraded,
		})
		return
	}

	job, err := h.scheduler.Await(r.Context(), ticket.JobID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "wait interrupted")
		return
	}
	if job.State == scheduler.StateFailed {
		h.jobError(w, job)
		return
	}

	// Degraded outcomes (fallback method, partial coverage, lost write
	// race) are still successful sorts.
	writeJSON(w, http.StatusOK, sortEnvelope(job.Result, h.scheduler.Snapshot()))
}

// sortEnvelope wraps a finished sort for the synchronous submit
// response.
func sortEnvelope(result *models.SortResult, snap models.QueueSnapshot) map[string]any {
	return map[string]any{
		"success":         true,
		"mode":            result.Mode,
		"songs_processed": result.Summary.SongsProcessed,
		"method":          result.Method,
		"sorted_song_ids": result.SortedSongIDs,
		"summary":         result.Summary,
		"queue_status":    snap,
	}
}

// submitError maps admission failures onto status codes.
func (h *SortHandler) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrQueueSaturated):
		seconds := int(math.Ceil(h.scheduler.EstimatedWait().Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               "sort queue saturated",
			"retry_after_seconds": seconds,
		})
	case errors.Is(err, shared.ErrInvalidMode), errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("sort submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "submission failed")
	}
}

// jobError maps a failed job onto a status code. Persistence failures
// are the server's fault; everything else on this path is the request's.
func (h *SortHandler) jobError(w http.ResponseWriter, job scheduler.Job) {
	switch {
	case errors.Is(job.Err(), shared.ErrPersistence):
		writeError(w, http.StatusInternalServerError, job.Error)
	case errors.Is(job.Err(), shared.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, job.Error)
	default:
		writeError(w, http.StatusUnprocessableEntity, job.Error)
	}
}

// job handles GET /api/sort/jobs/{id}.
func (h *SortHandler) job(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	job, ok := h.scheduler.Job(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// status handles GET /api/sort/status.
func (h *SortHandler) status(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	snap := h.scheduler.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"queued":            snap.Queued,
		"running":           snap.Running,
		"health_score":      snap.HealthScore,
		"estimated_wait_ms": h.scheduler.EstimatedWait().Milliseconds(),
	})
}

// order handles GET /api/groups/{id}/order.
func (h *SortHandler) order(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	if r.URL.Query().Get("mode") == string(models.ModePlaylist) {
		orders, err := h.orders.GetPlaylistOrders(groupID)
		if err != nil {
			h.orderError(w, err)
			return
		}
		if len(orders) == 0 {
			writeError(w, http.StatusNotFound, "no stored playlist orders")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "orders": orders})
		return
	}

	order, err := h.orders.GetGroupOrder(groupID)
	if err != nil {
		h.orderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *SortHandler) orderError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrGroupNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("failed to read stored order", "error", err)
	writeError(w, http.StatusInternalServerError, "failed to read stored order")
}

// listRuns handles GET /api/sort/runs.
func (h *SortHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = parsed
	}

	var (
		runs []models.RunMetrics
		err  error
	)
	if group := r.URL.Query().Get("group"); group != "" {
		runs, err = h.runs.RunsForGroup(group, limit)
	} else {
		runs, err = h.runs.RecentRuns(limit)
	}
	if err != nil {
		h.logger.Error("failed to read run metrics", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run metrics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// health handles GET /health.
func (h *SortHandler) health(w http.ResponseWriter, r *http.Request) {
	snap := h.scheduler.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"health_score": snap.HealthScore,
	})
}

// noStore marks a response non-cacheable. Queue state and job status go
// stale the moment they are written.
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}
