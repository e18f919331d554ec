// Package executor runs approved tool calls as controller jobs and folds the
// outcome into a result the planner can reason about. One Execute call covers
// one tool call; batch members are executed independently by the caller.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ansibot/ansibot/internal/controller"
	"github.com/ansibot/ansibot/internal/extract"
	"github.com/ansibot/ansibot/internal/timeline"
	"github.com/ansibot/ansibot/internal/tools"
)

// Status is the executor's verdict on one tool call.
type Status int

const (
	Succeeded Status = iota
	Failed
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case TimedOut:
		return "timeout"
	default:
		return "failed"
	}
}

// JobResult is the outcome of executing one tool call. A TimedOut result
// means the job's final status is unknown: the poll window closed while the
// job may still have been running. It is not a failure claim.
type JobResult struct {
	CallID  string
	Tool    string
	JobID   int
	Status  Status
	Payload string
	Reason  string
}

// Render formats the result as a tool message for the planner conversation.
func (r JobResult) Render() string {
	switch r.Status {
	case Succeeded:
		return fmt.Sprintf("Tool %s completed (job %d):\n%s", r.Tool, r.JobID, r.Payload)
	case TimedOut:
		return fmt.Sprintf("Tool %s (job %d): status unknown, the job did not reach a final state within the polling window. Do not assume it failed.", r.Tool, r.JobID)
	default:
		return fmt.Sprintf("Tool %s failed: %s", r.Tool, r.Reason)
	}
}

// Backend is the submit/poll surface of the controller the executor needs.
// controller.Client satisfies it; tests use fakes.
type Backend interface {
	Launch(ctx context.Context, templateID int, extraVars map[string]any, creds controller.Credentials) (controller.JobHandle, error)
	Status(ctx context.Context, handle controller.JobHandle, creds controller.Credentials) (controller.JobState, error)
	Output(ctx context.Context, handle controller.JobHandle, creds controller.Credentials) (string, error)
}

// Executor submits tool calls and polls them to a terminal state.
type Executor struct {
	backend  Backend
	timeline *timeline.TimelineService
	interval time.Duration
	timeout  time.Duration
}

// New creates an executor. Timeline may be nil.
func New(backend Backend, tl *timeline.TimelineService, interval, timeout time.Duration) *Executor {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{backend: backend, timeline: tl, interval: interval, timeout: timeout}
}

// Execute launches the job template behind the call and polls until the job
// reaches a terminal state or the polling window closes.
func (e *Executor) Execute(ctx context.Context, call extract.ToolCall, schema tools.Schema, creds controller.Credentials) JobResult {
	traceID := traceFromContext(ctx)
	start := time.Now()

	handle, err := e.backend.Launch(ctx, schema.TemplateID, call.Args, creds)
	if err != nil {
		var se *controller.SubmissionError
		reason := err.Error()
		if errors.As(err, &se) {
			reason = fmt.Sprintf("controller rejected the launch: %s", se.Body)
		}
		slog.Warn("tool launch failed", "tool", call.Name, "template", schema.TemplateID, "error", err)
		return JobResult{CallID: call.ID, Tool: call.Name, Status: Failed, Reason: reason}
	}

	slog.Info("tool launched", "tool", call.Name, "job", handle.ID, "template", schema.TemplateID)
	if e.timeline != nil {
		_ = e.timeline.InsertJob(strconv.Itoa(handle.ID), traceID, call.ID, call.Name, schema.TemplateID)
	}

	result := e.poll(ctx, call, handle, creds)
	if e.timeline != nil {
		_ = e.timeline.FinishJob(strconv.Itoa(handle.ID), result.Status.String(), time.Since(start))
	}
	return result
}

func (e *Executor) poll(ctx context.Context, call extract.ToolCall, handle controller.JobHandle, creds controller.Credentials) JobResult {
	deadline := time.Now().Add(e.timeout)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return JobResult{CallID: call.ID, Tool: call.Name, JobID: handle.ID, Status: TimedOut}
		case <-ticker.C:
		}

		state, err := e.backend.Status(ctx, handle, creds)
		if err != nil {
			// Transient poll errors are retried until the window closes.
			slog.Warn("job status poll failed", "job", handle.ID, "error", err)
		} else if state.Terminal() {
			return e.fold(ctx, call, handle, state, creds)
		}

		if time.Now().After(deadline) {
			slog.Warn("job polling window closed", "job", handle.ID, "tool", call.Name)
			return JobResult{CallID: call.ID, Tool: call.Name, JobID: handle.ID, Status: TimedOut}
		}
	}
}

func (e *Executor) fold(ctx context.Context, call extract.ToolCall, handle controller.JobHandle, state controller.JobState, creds controller.Credentials) JobResult {
	output, err := e.backend.Output(ctx, handle, creds)
	if err != nil {
		slog.Warn("job output fetch failed", "job", handle.ID, "error", err)
		output = ""
	}

	if state == controller.StateSuccessful {
		return JobResult{
			CallID:  call.ID,
			Tool:    call.Name,
			JobID:   handle.ID,
			Status:  Succeeded,
			Payload: output,
		}
	}
	return JobResult{
		CallID: call.ID,
		Tool:   call.Name,
		JobID:  handle.ID,
		Status: Failed,
		Reason: fmt.Sprintf("job finished with status %s: %s", state, tail(output, 500)),
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

type traceKey struct{}

// WithTrace tags a context with the turn's trace ID for job audit rows.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func traceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
