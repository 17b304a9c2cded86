// Package registry maps event types to the ordered handler descriptors that
// run for them. Handler implementations are registered as named factories at
// process start; the YAML config binds event types to those names. Build
// compiles a validated config into an immutable Snapshot, which hot-reload
// swaps atomically; a run captures one snapshot at event construction and
// never observes later swaps.
package registry

import (
	"fmt"
	"sync"

	"siteflow/internal/config"
	"siteflow/internal/guard"
	"siteflow/internal/handler"
)

// Factory constructs a handler instance from its descriptor params.
// Param validation happens here, so a bad descriptor fails the load before
// any handler executes.
type Factory func(params map[string]any) (handler.Handler, error)

// Table maps handler names to their factories.
// It is safe for concurrent reads; Register should only be called at startup.
type Table struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{factories: make(map[string]Factory)}
}

// Register adds a factory. Panics on duplicate name to surface
// misconfiguration early.
func (t *Table) Register(name string, f Factory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.factories[name]; exists {
		panic(fmt.Sprintf("handler registry: duplicate name %q", name))
	}
	t.factories[name] = f
}

// Resolve returns the factory for the given handler name.
func (t *Table) Resolve(name string) (Factory, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.factories[name]
	if !ok {
		return nil, fmt.Errorf("no handler factory registered for %q", name)
	}
	return f, nil
}

// Names returns all registered handler names.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.factories))
	for k := range t.factories {
		out = append(out, k)
	}
	return out
}

// Entry is one compiled handler descriptor.
type Entry struct {
	Type    string         `json:"type"`
	Handler string         `json:"handler"`
	Params  map[string]any `json:"params,omitempty"`
	When    string         `json:"when,omitempty"`

	factory Factory
	when    *guard.Expr // nil = unconditional
}

// Construct builds a handler instance from this entry.
func (e *Entry) Construct() (handler.Handler, error) {
	h, err := e.factory(e.Params)
	if err != nil {
		return nil, fmt.Errorf("construct handler %q for type %q: %w", e.Handler, e.Type, err)
	}
	return h, nil
}

// Applies reports whether the entry's guard passes for the given scope.
// Entries without a guard always apply.
func (e *Entry) Applies(scope map[string]any) (bool, error) {
	if e.when == nil {
		return true, nil
	}
	ok, err := e.when.Eval(scope)
	if err != nil {
		return false, fmt.Errorf("guard %q on handler %q: %w", e.When, e.Handler, err)
	}
	return ok, nil
}

// Snapshot is an immutable compiled registry. Hot-reload builds a new one
// and swaps it; existing runs keep the snapshot they were constructed with.
type Snapshot struct {
	entries []Entry
	byType  map[string][]int // type → indexes into entries, config order
}

// Build compiles a validated config against the factory table.
// Unknown handler names and unparsable guards are structural errors.
func Build(cfg *config.ServiceConfig, table *Table) (*Snapshot, error) {
	s := &Snapshot{
		entries: make([]Entry, 0, len(cfg.Events)),
		byType:  make(map[string][]int),
	}
	for i, def := range cfg.Events {
		f, err := table.Resolve(def.Handler)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		e := Entry{
			Type:    def.Type,
			Handler: def.Handler,
			Params:  def.Params,
			When:    def.When,
			factory: f,
		}
		if def.When != "" {
			expr, err := guard.Parse(def.When)
			if err != nil {
				return nil, fmt.Errorf("events[%d] (handler %q): %w", i, def.Handler, err)
			}
			e.when = expr
		}
		s.byType[def.Type] = append(s.byType[def.Type], len(s.entries))
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// EntriesFor returns the descriptors for an event type in registration
// order. The returned slice is shared; callers must not mutate it.
func (s *Snapshot) EntriesFor(eventType string) []*Entry {
	idx := s.byType[eventType]
	out := make([]*Entry, len(idx))
	for i, j := range idx {
		out[i] = &s.entries[j]
	}
	return out
}

// Entries returns every descriptor in config order, for diagnostics.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of descriptors in the snapshot.
func (s *Snapshot) Len() int { return len(s.entries) }
