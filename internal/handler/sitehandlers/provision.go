package sitehandlers

import (
	"context"
	"fmt"

	"siteflow/internal/handler"
)

// ProvisionHandler records one provisioning step for a site. The step name
// comes from the descriptor params; the target site comes from the run
// scope, unless a "site_id" param overrides it (fan-out uses that).
type ProvisionHandler struct {
	step   string
	siteID string // optional override
}

// NewProvision builds a ProvisionHandler. Params:
//   - step (required): the provisioning step name
//   - site_id (optional): target site override
func NewProvision(params map[string]any) (handler.Handler, error) {
	step, ok := stringParam(params, "step")
	if !ok {
		return nil, fmt.Errorf("provision: 'step' param is required")
	}
	siteID, _ := stringParam(params, "site_id")
	return &ProvisionHandler{step: step, siteID: siteID}, nil
}

func (p *ProvisionHandler) Class() string { return "provision" }

func (p *ProvisionHandler) Execute(ctx context.Context, run handler.Scope) (handler.Result, error) {
	target := p.siteID
	if target == "" {
		if run.Site() == nil {
			return handler.Result{}, fmt.Errorf("provision %s: event has no target site", p.step)
		}
		target = run.Site().ID
	}

	line := fmt.Sprintf("%s:%s", target, p.step)
	appendLog(run.Context(), "provision_log", line)

	return handler.Result{
		Success: true,
		Message: fmt.Sprintf("provisioned %s for site %s", p.step, target),
	}, nil
}
