// Package dispatch drains an event's incomplete bucket to exhaustion,
// executing each handler exactly once and filing it into complete or failed
// by outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"siteflow/internal/event"
	"siteflow/internal/metrics"
)

// ErrAborted marks an error that must stop the whole run instead of being
// filed as a single handler failure. Handlers signal it via Abort.
var ErrAborted = errors.New("run aborted")

// ErrStepLimit is returned when a run executes more handlers than MaxSteps
// allows, which usually means a handler perpetually re-enqueues itself.
var ErrStepLimit = errors.New("handler step limit exceeded")

// Abort wraps err so the dispatcher stops draining immediately, leaving
// the remaining handlers untouched in incomplete.
func Abort(err error) error {
	if err == nil {
		return ErrAborted
	}
	return &abortError{err: err}
}

type abortError struct{ err error }

func (a *abortError) Error() string        { return "run aborted: " + a.err.Error() }
func (a *abortError) Unwrap() error        { return a.err }
func (a *abortError) Is(target error) bool { return target == ErrAborted }

// RunResult summarizes one drained run.
type RunResult struct {
	Steps      int   `json:"steps"`
	Completed  int   `json:"completed"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// Dispatcher executes handlers for one event at a time. The zero value is
// usable: no step bound, run-through-failures policy, no sink.
type Dispatcher struct {
	// MaxSteps bounds handler executions per run; 0 means unbounded.
	MaxSteps int
	// StopOnFailure stops draining after the first failed handler,
	// leaving the rest in incomplete. Not an error.
	StopOnFailure bool
	// Sink receives one human-readable line per handler outcome.
	// Nil drops the output.
	Sink io.Writer
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Run loads the event's handlers from its registry snapshot and drains
// them. A load failure is returned before any handler executes.
func (d *Dispatcher) Run(ctx context.Context, ev *event.Event) (*RunResult, error) {
	if err := ev.LoadHandlers(); err != nil {
		return nil, err
	}
	return d.Drain(ctx, ev)
}

// Drain pops the head of incomplete, executes it, files it, and repeats
// until incomplete is empty, the only normal terminal condition. The queue
// is re-checked after every invocation, so handlers enqueued mid-run are
// observed. A handler error is captured into the failed bucket and the
// drain continues, unless the error is Abort-wrapped or the context is
// done, in which case the drain stops with the remainder still incomplete.
func (d *Dispatcher) Drain(ctx context.Context, ev *event.Event) (*RunResult, error) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()
	result := &RunResult{}
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
		metrics.RunDuration.Observe(float64(result.DurationMs))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if d.MaxSteps > 0 && result.Steps >= d.MaxSteps {
			if n, _ := ev.Len(event.Incomplete); n > 0 {
				return result, fmt.Errorf("%w: %d handlers executed, %d still queued", ErrStepLimit, result.Steps, n)
			}
			return result, nil
		}

		inst, err := ev.Pop(event.Incomplete)
		if err != nil {
			return result, err
		}
		if inst == nil {
			return result, nil
		}
		result.Steps++

		started := time.Now()
		inst.Started = &started
		res, execErr := inst.Handler.Execute(ctx, ev)
		completed := time.Now()
		inst.Completed = &completed

		inst.Success = execErr == nil && res.Success
		inst.Message = res.Message
		if execErr != nil && inst.Message == "" {
			inst.Message = execErr.Error()
		}

		bucket := event.Complete
		status := "success"
		if !inst.Success {
			bucket = event.Failed
			status = "failed"
			result.Failed++
		} else {
			result.Completed++
		}
		if err := ev.PushInstance(inst, bucket); err != nil {
			return result, err
		}
		metrics.HandlersExecuted.WithLabelValues(inst.Handler.Class(), status).Inc()
		d.emit(inst, status)
		log.Debug("handler finished",
			"event_type", ev.Type(),
			"class", inst.Handler.Class(),
			"status", status,
			"duration_ms", completed.Sub(started).Milliseconds(),
		)

		if execErr != nil && (errors.Is(execErr, ErrAborted) || errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded)) {
			return result, execErr
		}
		if d.StopOnFailure && bucket == event.Failed {
			return result, nil
		}
	}
}

func (d *Dispatcher) emit(inst *event.Instance, status string) {
	if d.Sink == nil {
		return
	}
	msg := inst.Message
	if msg == "" {
		msg = "done"
	}
	fmt.Fprintf(d.Sink, "[%s] %s: %s\n", status, inst.Handler.Class(), msg)
}
