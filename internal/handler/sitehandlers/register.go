// Package sitehandlers provides the built-in handlers for site lifecycle
// events: provisioning steps, DNS record setup, notifications, and per-site
// fan-out.
package sitehandlers

import (
	"siteflow/internal/handler"
	"siteflow/internal/registry"
)

// Register adds all built-in handler factories to the table. The fanout
// factory keeps a reference to the table so it can construct the handlers
// it enqueues.
func Register(table *registry.Table) {
	table.Register("provision", NewProvision)
	table.Register("dns", NewDNS)
	table.Register("notify", NewNotify)
	table.Register("fanout", func(params map[string]any) (handler.Handler, error) {
		return NewFanout(params, table)
	})
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok && v != ""
}

// appendLog appends a line to a []string entry in the run context,
// creating the entry on first use.
func appendLog(ctx map[string]any, key, line string) {
	if existing, ok := ctx[key].([]string); ok {
		ctx[key] = append(existing, line)
		return
	}
	ctx[key] = []string{line}
}
