package engine_test

import (
	"context"
	"testing"

	"siteflow/internal/config"
	"siteflow/internal/engine"
	"siteflow/internal/handler"
	"siteflow/internal/history"
	"siteflow/internal/registry"
	"siteflow/internal/site"
)

func testTable(t *testing.T) *registry.Table {
	t.Helper()
	table := registry.NewTable()
	table.Register("ok", func(params map[string]any) (handler.Handler, error) {
		return handler.Func{Name: "ok", Fn: func(ctx context.Context, run handler.Scope) (handler.Result, error) {
			return handler.Result{Success: true, Message: "ok"}, nil
		}}, nil
	})
	return table
}

func buildSnapshot(t *testing.T, table *registry.Table, defs []config.EventDef) *registry.Snapshot {
	t.Helper()
	snap, err := registry.Build(&config.ServiceConfig{Version: "v1", Events: defs}, table)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return snap
}

func newEngine(t *testing.T, snap *registry.Snapshot, sites *site.Catalog) *engine.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	conf := config.EngineConf{EventWorkers: 2, QueueDepth: 8, EventTimeoutMs: 3000, MaxSteps: 100}
	return engine.New(ctx, snap, sites, conf, nil, nil, nil)
}

func TestProcessSync(t *testing.T) {
	table := testTable(t)
	snap := buildSnapshot(t, table, []config.EventDef{
		{Type: "demo", Handler: "ok"},
		{Type: "demo", Handler: "ok"},
	})
	eng := newEngine(t, snap, site.NewCatalog(nil))

	res, err := eng.ProcessSync(context.Background(), engine.TriggerRequest{Type: "demo"})
	if err != nil {
		t.Fatalf("ProcessSync error: %v", err)
	}
	if res.Status != history.StatusSucceeded {
		t.Errorf("status = %q, want succeeded", res.Status)
	}
	if res.Summary.Steps != 2 || res.Summary.Completed != 2 {
		t.Errorf("summary = %+v, want 2 completed steps", res.Summary)
	}
	if res.RunID == "" {
		t.Error("run_id was not assigned")
	}
}

func TestUnknownSiteAborts(t *testing.T) {
	table := testTable(t)
	snap := buildSnapshot(t, table, []config.EventDef{{Type: "demo", Handler: "ok"}})
	eng := newEngine(t, snap, site.NewCatalog(nil))

	res, err := eng.ProcessSync(context.Background(), engine.TriggerRequest{Type: "demo", SiteID: "ghost"})
	if err != nil {
		t.Fatalf("ProcessSync error: %v", err)
	}
	if res.Status != history.StatusAborted || res.Error == "" {
		t.Errorf("result = %+v, want aborted with error", res)
	}
}

func TestSwapTakesEffectForNewRuns(t *testing.T) {
	table := testTable(t)
	snap := buildSnapshot(t, table, []config.EventDef{{Type: "demo", Handler: "ok"}})
	eng := newEngine(t, snap, site.NewCatalog(nil))

	bigger := buildSnapshot(t, table, []config.EventDef{
		{Type: "demo", Handler: "ok"},
		{Type: "demo", Handler: "ok"},
		{Type: "demo", Handler: "ok"},
	})
	eng.Swap(bigger, site.NewCatalog(nil))

	res, err := eng.ProcessSync(context.Background(), engine.TriggerRequest{Type: "demo"})
	if err != nil {
		t.Fatalf("ProcessSync error: %v", err)
	}
	if res.Summary.Steps != 3 {
		t.Errorf("steps = %d, want 3 from the swapped snapshot", res.Summary.Steps)
	}
}
