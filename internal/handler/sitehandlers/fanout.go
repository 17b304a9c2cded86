package sitehandlers

import (
	"context"
	"fmt"

	"siteflow/internal/handler"
	"siteflow/internal/registry"
)

// FanoutHandler expands one run into per-site follow-up work: for every
// site ID listed under a context key, it constructs the named handler with
// a site_id param and enqueues it onto the same run.
type FanoutHandler struct {
	key     string
	name    string
	params  map[string]any
	factory registry.Factory
}

// NewFanout builds a FanoutHandler. Params:
//   - sites_key (required): context key holding the site ID list
//   - handler (required): handler name to enqueue per site
//   - params (optional): extra params passed to each constructed handler
//
// The handler name is resolved at construction, so a bad descriptor fails
// the load instead of the run.
func NewFanout(params map[string]any, table *registry.Table) (handler.Handler, error) {
	key, ok := stringParam(params, "sites_key")
	if !ok {
		return nil, fmt.Errorf("fanout: 'sites_key' param is required")
	}
	name, ok := stringParam(params, "handler")
	if !ok {
		return nil, fmt.Errorf("fanout: 'handler' param is required")
	}
	factory, err := table.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("fanout: %w", err)
	}
	extra, _ := params["params"].(map[string]any)
	return &FanoutHandler{key: key, name: name, params: extra, factory: factory}, nil
}

func (f *FanoutHandler) Class() string { return "fanout" }

func (f *FanoutHandler) Execute(ctx context.Context, run handler.Scope) (handler.Result, error) {
	ids, err := siteIDs(run.Context()[f.key])
	if err != nil {
		return handler.Result{}, fmt.Errorf("fanout: context key %q: %w", f.key, err)
	}

	for _, id := range ids {
		params := make(map[string]any, len(f.params)+1)
		for k, v := range f.params {
			params[k] = v
		}
		params["site_id"] = id
		h, err := f.factory(params)
		if err != nil {
			return handler.Result{}, fmt.Errorf("fanout: construct %q for site %s: %w", f.name, id, err)
		}
		run.Enqueue(h)
	}

	return handler.Result{
		Success: true,
		Message: fmt.Sprintf("enqueued %s for %d sites", f.name, len(ids)),
	}, nil
}

func siteIDs(v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, fmt.Errorf("not set")
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entry %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}
