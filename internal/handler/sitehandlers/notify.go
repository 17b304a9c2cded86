package sitehandlers

import (
	"context"
	"fmt"

	"siteflow/internal/handler"
)

// NotifyHandler emits a human-readable notification line for the run. It
// reads "notify_message" from the context when earlier handlers set one,
// otherwise it summarizes the event itself.
type NotifyHandler struct {
	channel string
}

// NewNotify builds a NotifyHandler. Params:
//   - channel (required): the notification channel name
func NewNotify(params map[string]any) (handler.Handler, error) {
	channel, ok := stringParam(params, "channel")
	if !ok {
		return nil, fmt.Errorf("notify: 'channel' param is required")
	}
	return &NotifyHandler{channel: channel}, nil
}

func (n *NotifyHandler) Class() string { return "notify" }

func (n *NotifyHandler) Execute(ctx context.Context, run handler.Scope) (handler.Result, error) {
	msg, _ := run.Context()["notify_message"].(string)
	if msg == "" {
		msg = fmt.Sprintf("event %q finished", run.Type())
		if run.Site() != nil {
			msg = fmt.Sprintf("event %q finished for site %s", run.Type(), run.Site().ID)
		}
	}
	appendLog(run.Context(), "notifications", fmt.Sprintf("#%s %s", n.channel, msg))

	return handler.Result{
		Success: true,
		Message: fmt.Sprintf("notified #%s: %s", n.channel, msg),
	}, nil
}
