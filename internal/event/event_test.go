package event_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"siteflow/internal/config"
	"siteflow/internal/event"
	"siteflow/internal/handler"
	"siteflow/internal/registry"
	"siteflow/internal/site"
)

func named(name string) handler.Handler {
	return handler.Func{
		Name: name,
		Fn: func(ctx context.Context, run handler.Scope) (handler.Result, error) {
			return handler.Result{Success: true}, nil
		},
	}
}

// snapshotFor compiles event definitions against a table whose factories
// all produce no-op handlers named after the descriptor.
func snapshotFor(t *testing.T, defs []config.EventDef) *registry.Snapshot {
	t.Helper()
	table := registry.NewTable()
	seen := make(map[string]bool)
	for _, d := range defs {
		if seen[d.Handler] {
			continue
		}
		seen[d.Handler] = true
		name := d.Handler
		table.Register(name, func(params map[string]any) (handler.Handler, error) {
			return named(name), nil
		})
	}
	snap, err := registry.Build(&config.ServiceConfig{Version: "v1", Events: defs}, table)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return snap
}

func classes(list []event.HandlerDebug) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.Class
	}
	return out
}

func TestPushPopFIFO(t *testing.T) {
	ev := event.New("demo", nil, nil, nil)

	for _, name := range []string{"a", "b", "c"} {
		if err := ev.Push(named(name), event.Incomplete); err != nil {
			t.Fatalf("Push(%s) error: %v", name, err)
		}
	}

	var got []string
	for {
		inst, err := ev.Pop(event.Incomplete)
		if err != nil {
			t.Fatalf("Pop error: %v", err)
		}
		if inst == nil {
			break
		}
		got = append(got, inst.Handler.Class())
	}
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("pop order = %v, want [a b c]", got)
	}
}

func TestPopEmptyBucket(t *testing.T) {
	ev := event.New("demo", nil, nil, nil)
	inst, err := ev.Pop(event.Failed)
	if err != nil {
		t.Fatalf("Pop error: %v", err)
	}
	if inst != nil {
		t.Errorf("expected nil from empty bucket, got %v", inst)
	}
}

func TestInvalidBucket(t *testing.T) {
	ev := event.New("demo", nil, nil, nil)
	if err := ev.Push(named("a"), event.Incomplete); err != nil {
		t.Fatalf("Push error: %v", err)
	}

	if err := ev.Push(named("b"), event.Bucket("bogus")); !errors.Is(err, event.ErrInvalidBucket) {
		t.Errorf("Push to bogus bucket: err = %v, want ErrInvalidBucket", err)
	}
	if _, err := ev.Pop(event.Bucket("bogus")); !errors.Is(err, event.ErrInvalidBucket) {
		t.Errorf("Pop from bogus bucket: err = %v, want ErrInvalidBucket", err)
	}

	// No bucket was mutated on the failing paths.
	for _, b := range []event.Bucket{event.Incomplete, event.Complete, event.Failed} {
		n, err := ev.Len(b)
		if err != nil {
			t.Fatalf("Len(%s) error: %v", b, err)
		}
		want := 0
		if b == event.Incomplete {
			want = 1
		}
		if n != want {
			t.Errorf("Len(%s) = %d, want %d", b, n, want)
		}
	}
}

func TestDebugIdempotent(t *testing.T) {
	ev := event.New("demo", nil, nil, nil)
	ev.Push(named("a"), event.Incomplete)
	ev.Push(named("b"), event.Complete)
	ev.Push(named("c"), event.Failed)

	first := ev.Debug()
	second := ev.Debug()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Debug() not idempotent:\nfirst  = %+v\nsecond = %+v", first, second)
	}
	if got := classes(first.Handlers.Incomplete); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("incomplete classes = %v, want [a]", got)
	}
	if got := classes(first.Handlers.Complete); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("complete classes = %v, want [b]", got)
	}
	if got := classes(first.Handlers.Failed); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("failed classes = %v, want [c]", got)
	}
}

func TestLoadHandlersOrder(t *testing.T) {
	snap := snapshotFor(t, []config.EventDef{
		{Type: "demo", Handler: "first"},
		{Type: "other", Handler: "elsewhere"},
		{Type: "demo", Handler: "second"},
		{Type: "demo", Handler: "third"},
	})

	ev := event.New("demo", snap, nil, nil)
	if err := ev.LoadHandlers(); err != nil {
		t.Fatalf("LoadHandlers error: %v", err)
	}
	got := classes(ev.Debug().Handlers.Incomplete)
	if !reflect.DeepEqual(got, []string{"first", "second", "third"}) {
		t.Errorf("loaded order = %v, want [first second third]", got)
	}

	// A second call appends the full set again; avoiding that is the
	// caller's job.
	if err := ev.LoadHandlers(); err != nil {
		t.Fatalf("second LoadHandlers error: %v", err)
	}
	if n, _ := ev.Len(event.Incomplete); n != 6 {
		t.Errorf("after double load: incomplete = %d, want 6", n)
	}
}

func TestLoadHandlersGuards(t *testing.T) {
	snap := snapshotFor(t, []config.EventDef{
		{Type: "demo", Handler: "always"},
		{Type: "demo", Handler: "prod_only", When: `site.env == "production"`},
		{Type: "demo", Handler: "pro_plan", When: `plan == "pro"`},
	})

	st := &site.Site{ID: "s1", Host: "s1.example.com", Env: "staging"}
	ev := event.New("demo", snap, map[string]any{"plan": "pro"}, st)
	if err := ev.LoadHandlers(); err != nil {
		t.Fatalf("LoadHandlers error: %v", err)
	}
	got := classes(ev.Debug().Handlers.Incomplete)
	if !reflect.DeepEqual(got, []string{"always", "pro_plan"}) {
		t.Errorf("loaded = %v, want [always pro_plan]", got)
	}
}

func TestLoadHandlersConstructFailureIsAtomic(t *testing.T) {
	table := registry.NewTable()
	table.Register("ok", func(params map[string]any) (handler.Handler, error) {
		return named("ok"), nil
	})
	table.Register("broken", func(params map[string]any) (handler.Handler, error) {
		return nil, errors.New("missing required param")
	})
	snap, err := registry.Build(&config.ServiceConfig{
		Version: "v1",
		Events: []config.EventDef{
			{Type: "demo", Handler: "ok"},
			{Type: "demo", Handler: "broken"},
		},
	}, table)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	ev := event.New("demo", snap, nil, nil)
	if err := ev.LoadHandlers(); err == nil {
		t.Fatal("expected LoadHandlers error")
	}
	if n, _ := ev.Len(event.Incomplete); n != 0 {
		t.Errorf("failed load enqueued %d handlers, want 0", n)
	}
}

func TestNewDefaults(t *testing.T) {
	ev := event.New("demo", nil, nil, nil)
	if ev.Context() == nil {
		t.Error("nil context map was not defaulted")
	}
	if err := ev.LoadHandlers(); err != nil {
		t.Errorf("LoadHandlers with nil snapshot: %v", err)
	}
	if ev.Site() != nil {
		t.Errorf("Site() = %v, want nil", ev.Site())
	}
}

func TestEnqueueAppendsToTail(t *testing.T) {
	ev := event.New("demo", nil, nil, nil)
	ev.Push(named("a"), event.Incomplete)
	ev.Enqueue(named("b"))

	got := classes(ev.Debug().Handlers.Incomplete)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("incomplete = %v, want [a b]", got)
	}
}
