// Package handler defines the contract every unit of work in an event run
// implements, plus the narrow view of the run that handlers operate through.
package handler

import (
	"context"

	"siteflow/internal/site"
)

// Result holds the outcome of executing a single handler.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler is the interface all handler implementations must satisfy.
// The dispatcher invokes each constructed instance exactly once; a handler
// that wants retry semantics enqueues a fresh instance via the scope.
type Handler interface {
	// Class returns the implementation identity used in debug snapshots
	// and metrics labels.
	Class() string
	// Execute performs the unit of work. A returned error marks the
	// handler failed without stopping the run; wrap it with
	// dispatch.Abort to stop the whole run instead.
	Execute(ctx context.Context, run Scope) (Result, error)
}

// Scope is what a handler may see and touch during execution: the shared
// context map, the target site, and the ability to enqueue follow-up
// handlers onto the same run. It deliberately exposes no bucket surgery.
type Scope interface {
	// Type returns the event type that triggered this run.
	Type() string
	// Context returns the run's shared mutable context map. Writes are
	// visible to every handler executed after this one.
	Context() map[string]any
	// Site returns the target site, or nil for a global event.
	Site() *site.Site
	// Enqueue appends h to the run's pending work, after everything
	// already waiting.
	Enqueue(h Handler)
}

// Func adapts a plain function to the Handler interface, mainly for tests
// and one-off wiring.
type Func struct {
	Name string
	Fn   func(ctx context.Context, run Scope) (Result, error)
}

func (f Func) Class() string { return f.Name }

func (f Func) Execute(ctx context.Context, run Scope) (Result, error) {
	return f.Fn(ctx, run)
}
