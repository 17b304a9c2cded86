package sitehandlers

import (
	"context"
	"fmt"
	"strings"

	"siteflow/internal/handler"
)

// DNSHandler derives the hostname record for the target site and records it
// in the run context under "dns_records".
type DNSHandler struct {
	zone string
}

// NewDNS builds a DNSHandler. Params:
//   - zone (required): the DNS zone records are created under
func NewDNS(params map[string]any) (handler.Handler, error) {
	zone, ok := stringParam(params, "zone")
	if !ok {
		return nil, fmt.Errorf("dns: 'zone' param is required")
	}
	return &DNSHandler{zone: strings.TrimSuffix(zone, ".")}, nil
}

func (d *DNSHandler) Class() string { return "dns" }

func (d *DNSHandler) Execute(ctx context.Context, run handler.Scope) (handler.Result, error) {
	st := run.Site()
	if st == nil {
		return handler.Result{}, fmt.Errorf("dns: event has no target site")
	}

	record := st.Host
	if !strings.Contains(record, ".") {
		record = record + "." + d.zone
	}
	appendLog(run.Context(), "dns_records", record)

	return handler.Result{
		Success: true,
		Message: fmt.Sprintf("created record %s for site %s", record, st.ID),
	}, nil
}
