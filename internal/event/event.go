// Package event holds the per-run state of one triggered event: the shared
// context map, the target site, the registry snapshot captured at
// construction, and the three lifecycle buckets handlers move through.
package event

import (
	"errors"
	"fmt"
	"time"

	"siteflow/internal/handler"
	"siteflow/internal/registry"
	"siteflow/internal/site"
)

// Bucket names one of the three lifecycle queues of a run.
type Bucket string

const (
	Incomplete Bucket = "incomplete"
	Complete   Bucket = "complete"
	Failed     Bucket = "failed"
)

// ErrInvalidBucket is returned by Push and Pop for a bucket outside the
// three known ones. No queue is mutated on that path.
var ErrInvalidBucket = errors.New("incompatible handler bucket")

// Instance is one constructed handler plus its lifecycle record. An
// instance lives in exactly one bucket at a time and never returns to
// incomplete once filed.
type Instance struct {
	Handler   handler.Handler
	Started   *time.Time
	Completed *time.Time
	Message   string
	Success   bool
}

// Event is the context object for one run.
type Event struct {
	eventType string
	context   map[string]any
	site      *site.Site
	snapshot  *registry.Snapshot

	incomplete []*Instance
	complete   []*Instance
	failed     []*Instance
}

// New constructs an Event. The snapshot is captured by reference and never
// re-read, so registry swaps after construction are not observed. A nil
// context map or snapshot is tolerated by defaulting, not by erroring.
func New(eventType string, snap *registry.Snapshot, ctxMap map[string]any, st *site.Site) *Event {
	if ctxMap == nil {
		ctxMap = make(map[string]any)
	}
	if snap == nil {
		snap = &registry.Snapshot{}
	}
	return &Event{
		eventType: eventType,
		context:   ctxMap,
		site:      st,
		snapshot:  snap,
	}
}

// Type returns the event type that selects which handlers apply.
func (e *Event) Type() string { return e.eventType }

// Context returns the shared mutable context map.
func (e *Event) Context() map[string]any { return e.context }

// Site returns the target site, or nil for a global event.
func (e *Event) Site() *site.Site { return e.site }

// Enqueue appends h to the tail of the incomplete bucket. This is how a
// running handler fans out into follow-up work.
func (e *Event) Enqueue(h handler.Handler) {
	e.incomplete = append(e.incomplete, &Instance{Handler: h})
}

// LoadHandlers constructs an instance for every snapshot entry matching
// this event's type, in registry order, and appends them to the incomplete
// bucket. Entries whose guard evaluates false are skipped. Any construction
// or guard failure aborts the whole load: nothing is enqueued and the error
// is returned before a single handler runs.
//
// Calling LoadHandlers twice appends the full set again; avoiding that is
// the caller's responsibility.
func (e *Event) LoadHandlers() error {
	entries := e.snapshot.EntriesFor(e.eventType)
	if len(entries) == 0 {
		return nil
	}
	scope := e.guardScope()
	loaded := make([]*Instance, 0, len(entries))
	for _, entry := range entries {
		ok, err := entry.Applies(scope)
		if err != nil {
			return fmt.Errorf("load handlers for %q: %w", e.eventType, err)
		}
		if !ok {
			continue
		}
		h, err := entry.Construct()
		if err != nil {
			return fmt.Errorf("load handlers for %q: %w", e.eventType, err)
		}
		loaded = append(loaded, &Instance{Handler: h})
	}
	e.incomplete = append(e.incomplete, loaded...)
	return nil
}

// guardScope is what guard expressions resolve against: the run context at
// the top level plus "event" and "site" sub-maps.
func (e *Event) guardScope() map[string]any {
	scope := make(map[string]any, len(e.context)+2)
	for k, v := range e.context {
		scope[k] = v
	}
	scope["event"] = map[string]any{"type": e.eventType}
	if e.site != nil {
		scope["site"] = map[string]any{
			"id":   e.site.ID,
			"name": e.site.Name,
			"host": e.site.Host,
			"env":  e.site.Env,
		}
	}
	return scope
}

// Push wraps h in a fresh Instance and appends it to the named bucket.
func (e *Event) Push(h handler.Handler, b Bucket) error {
	return e.PushInstance(&Instance{Handler: h}, b)
}

// PushInstance appends an existing instance to the tail of the named
// bucket. The dispatcher uses this to file finished handlers.
func (e *Event) PushInstance(inst *Instance, b Bucket) error {
	q, err := e.bucket(b)
	if err != nil {
		return err
	}
	*q = append(*q, inst)
	return nil
}

// Pop removes and returns the head of the named bucket (FIFO), or nil when
// the bucket is empty.
func (e *Event) Pop(b Bucket) (*Instance, error) {
	q, err := e.bucket(b)
	if err != nil {
		return nil, err
	}
	if len(*q) == 0 {
		return nil, nil
	}
	head := (*q)[0]
	*q = (*q)[1:]
	return head, nil
}

// Len returns the number of instances in the named bucket.
func (e *Event) Len(b Bucket) (int, error) {
	q, err := e.bucket(b)
	if err != nil {
		return 0, err
	}
	return len(*q), nil
}

func (e *Event) bucket(b Bucket) (*[]*Instance, error) {
	switch b {
	case Incomplete:
		return &e.incomplete, nil
	case Complete:
		return &e.complete, nil
	case Failed:
		return &e.failed, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, b)
}

// HandlerDebug is one handler's entry in a debug snapshot.
type HandlerDebug struct {
	Class     string     `json:"class"`
	Started   *time.Time `json:"started"`
	Completed *time.Time `json:"completed"`
	Message   string     `json:"message"`
	Success   bool       `json:"success"`
}

// BucketDebug groups snapshot entries by lifecycle bucket.
type BucketDebug struct {
	Incomplete []HandlerDebug `json:"incomplete"`
	Complete   []HandlerDebug `json:"complete"`
	Failed     []HandlerDebug `json:"failed"`
}

// Snapshot is the structured debug view of a run.
type Snapshot struct {
	Handlers BucketDebug `json:"handlers"`
}

// Debug produces a deep-copied snapshot of all three buckets for
// diagnostics and test assertions. It has no side effects; calling it twice
// without dispatching in between yields identical structures.
func (e *Event) Debug() Snapshot {
	return Snapshot{Handlers: BucketDebug{
		Incomplete: debugList(e.incomplete),
		Complete:   debugList(e.complete),
		Failed:     debugList(e.failed),
	}}
}

func debugList(q []*Instance) []HandlerDebug {
	out := make([]HandlerDebug, len(q))
	for i, inst := range q {
		d := HandlerDebug{
			Class:   inst.Handler.Class(),
			Message: inst.Message,
			Success: inst.Success,
		}
		if inst.Started != nil {
			t := *inst.Started
			d.Started = &t
		}
		if inst.Completed != nil {
			t := *inst.Completed
			d.Completed = &t
		}
		out[i] = d
	}
	return out
}
