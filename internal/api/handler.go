package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siteflow/internal/config"
	"siteflow/internal/engine"
	"siteflow/internal/history"
	"siteflow/internal/metrics"
	"siteflow/internal/registry"
	"siteflow/internal/site"
)

const maxBatchSize = 100

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	table  *registry.Table
	store  *history.Store // nil disables the /v1/runs endpoints
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, loader *config.Loader, table *registry.Table, store *history.Store) http.Handler {
	h := &Handler{eng: eng, loader: loader, table: table, store: store, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.triggerEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.triggerBatch)
	h.mux.HandleFunc("GET /v1/registry", h.listRegistry)
	h.mux.HandleFunc("POST /v1/registry/reload", h.reloadRegistry)
	h.mux.HandleFunc("GET /v1/runs", h.listRuns)
	h.mux.HandleFunc("GET /v1/runs/{id}", h.getRun)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/events — synchronous single-run trigger.
func (h *Handler) triggerEvent(w http.ResponseWriter, r *http.Request) {
	var req engine.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "event type is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.SiteID != "" {
		if _, err := h.eng.Sites().Get(req.SiteID); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
	}

	res, err := h.eng.ProcessSync(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/events/batch — async batch trigger (up to 100 runs).
func (h *Handler) triggerBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []engine.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(reqs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(reqs), maxBatchSize))
		return
	}

	jobID := uuid.New().String()
	queued := 0
	for i := range reqs {
		if reqs[i].Type == "" {
			continue
		}
		if reqs[i].ID == "" {
			reqs[i].ID = uuid.New().String()
		}
		if h.eng.ProcessAsync(reqs[i]) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   jobID,
		"total":    len(reqs),
		"queued":   queued,
		"rejected": len(reqs) - queued,
	})
}

// GET /v1/registry — descriptors of the live snapshot.
func (h *Handler) listRegistry(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  cfg.Version,
		"handlers": h.table.Names(),
		"events":   h.eng.Snapshot().Entries(),
	})
}

// POST /v1/registry/reload — reload config from disk, rebuild, swap.
func (h *Handler) reloadRegistry(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	snap, err := registry.Build(cfg, h.table)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.eng.Swap(snap, site.NewCatalog(cfg.Sites))
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"events":   snap.Len(),
		"sites":    len(cfg.Sites),
	})
}

// GET /v1/runs — recent finished runs.
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /v1/runs/{id} — one finished run with its debug snapshot.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, history.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the run queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
