// Package engine is the construction entry point surrounding code uses to
// trigger event runs: it wires the registry snapshot, site catalog, output
// sink, and dispatcher policy into ready-to-run events and processes them
// on a bounded worker pool.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"siteflow/internal/config"
	"siteflow/internal/dispatch"
	"siteflow/internal/event"
	"siteflow/internal/history"
	"siteflow/internal/metrics"
	"siteflow/internal/registry"
	"siteflow/internal/site"
)

// TriggerRequest asks for one event run.
type TriggerRequest struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	SiteID  string         `json:"site_id,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// TriggerResult is the outcome of one event run, including the full debug
// snapshot of the three buckets.
type TriggerResult struct {
	RunID      string             `json:"run_id"`
	EventType  string             `json:"event_type"`
	SiteID     string             `json:"site_id,omitempty"`
	Status     history.Status     `json:"status"`
	Summary    dispatch.RunResult `json:"summary"`
	Debug      event.Snapshot     `json:"debug"`
	Error      string             `json:"error,omitempty"`
}

// state bundles the hot-swappable parts of the engine: a compiled registry
// snapshot and the site catalog built from the same config generation.
type state struct {
	snapshot *registry.Snapshot
	sites    *site.Catalog
}

// Engine processes trigger requests through the dispatcher.
type Engine struct {
	state atomic.Pointer[state]
	conf  config.EngineConf
	sink  io.Writer
	log   *slog.Logger
	store *history.Store // nil disables the audit log
	pool  *runPool
}

// New creates an Engine and starts its worker pool. sink and store may be
// nil; logger defaults to slog.Default.
func New(ctx context.Context, snap *registry.Snapshot, sites *site.Catalog, conf config.EngineConf, sink io.Writer, store *history.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		conf:  conf,
		sink:  sink,
		log:   logger,
		store: store,
	}
	e.state.Store(&state{snapshot: snap, sites: sites})

	e.pool = newRunPool(ctx, conf.EventWorkers, conf.QueueDepth, func(ctx context.Context, w *runWork) {
		res := e.processRun(ctx, w.req)
		if w.resultC != nil {
			w.resultC <- res
		}
	})
	return e
}

// Swap atomically replaces the registry snapshot and site catalog (used on
// hot-reload). Runs already constructed keep their old snapshot.
func (e *Engine) Swap(snap *registry.Snapshot, sites *site.Catalog) {
	e.state.Store(&state{snapshot: snap, sites: sites})
}

// Snapshot returns the live registry snapshot.
func (e *Engine) Snapshot() *registry.Snapshot {
	return e.state.Load().snapshot
}

// Sites returns the live site catalog.
func (e *Engine) Sites() *site.Catalog {
	return e.state.Load().sites
}

// ProcessSync runs one trigger request and waits for its result.
func (e *Engine) ProcessSync(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	resultC := make(chan *TriggerResult, 1)
	if !e.pool.submit(&runWork{req: req, resultC: resultC}) {
		metrics.RunsDropped.Inc()
		return nil, fmt.Errorf("run queue full (capacity %d)", e.pool.queueCap())
	}
	metrics.RunsEnqueued.Inc()

	timeout := time.Duration(e.conf.EventTimeoutMs) * time.Millisecond
	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("run timed out after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues a trigger request for background processing.
// Returns false if the queue is full.
func (e *Engine) ProcessAsync(req TriggerRequest) bool {
	if !e.pool.submit(&runWork{req: req}) {
		metrics.RunsDropped.Inc()
		return false
	}
	metrics.RunsEnqueued.Inc()
	return true
}

// QueueUtilization returns queue used / capacity (0-1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.queueCap() == 0 {
		return 0
	}
	return float64(e.pool.queueLen()) / float64(e.pool.queueCap())
}

// Shutdown drains the pool gracefully.
func (e *Engine) Shutdown() {
	e.pool.drainAndWait()
}

func (e *Engine) processRun(ctx context.Context, req TriggerRequest) *TriggerResult {
	runID := req.ID
	if runID == "" {
		runID = uuid.New().String()
	}
	res := &TriggerResult{RunID: runID, EventType: req.Type, SiteID: req.SiteID}

	st := e.state.Load()
	var target *site.Site
	if req.SiteID != "" {
		var err error
		target, err = st.sites.Get(req.SiteID)
		if err != nil {
			res.Status = history.StatusAborted
			res.Error = err.Error()
			metrics.RunsProcessed.WithLabelValues(req.Type, string(res.Status)).Inc()
			return res
		}
	}

	ev := event.New(req.Type, st.snapshot, req.Context, target)
	d := &dispatch.Dispatcher{
		MaxSteps:      e.conf.MaxSteps,
		StopOnFailure: e.conf.StopOnFailure,
		Sink:          e.sink,
		Logger:        e.log,
	}

	startedAt := time.Now()
	summary, runErr := d.Run(ctx, ev)
	completedAt := time.Now()

	if summary != nil {
		res.Summary = *summary
	}
	res.Debug = ev.Debug()
	switch {
	case runErr != nil:
		res.Status = history.StatusAborted
		res.Error = runErr.Error()
	case res.Summary.Failed > 0:
		res.Status = history.StatusPartial
	default:
		res.Status = history.StatusSucceeded
	}
	metrics.RunsProcessed.WithLabelValues(req.Type, string(res.Status)).Inc()
	e.log.Info("run finished",
		"run_id", runID,
		"event_type", req.Type,
		"status", res.Status,
		"steps", res.Summary.Steps,
		"failed", res.Summary.Failed,
	)

	if e.store != nil {
		rec := history.Record{
			RunID:       runID,
			EventType:   req.Type,
			SiteID:      req.SiteID,
			Status:      res.Status,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Steps:       res.Summary.Steps,
			Failed:      res.Summary.Failed,
			Snapshot:    res.Debug,
		}
		if err := e.store.Record(context.WithoutCancel(ctx), rec); err != nil {
			e.log.Warn("history record failed", "run_id", runID, "err", err)
		}
	}
	return res
}
