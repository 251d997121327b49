/*
Package agent runs the classify-then-handle pipeline for a task and owns the
event contract: a submitted task first, handler progress next, and exactly one
final status event last.
*/
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/intent"
	"github.com/theapemachine/a2a-payments/pkg/skills"
)

const (
	ErrorTypeProcessing = "processing_error"
	ErrorTypeAgent      = "agent_error"

	DefaultHandlerTimeout = 60 * time.Second
)

var (
	ErrBusClosed    = errors.New("event bus is closed")
	ErrTaskBusy     = errors.New("task is already being executed")
	ErrNotRunning   = errors.New("task is not running")
	ErrAlreadyFinal = errors.New("task already reached a final state")
	errFinalEvent   = errors.New("handlers may not publish final events")
)

/*
Bus receives the events of a single task, in order. Publish must fail with
ErrBusClosed once a final event has gone through.
*/
type Bus interface {
	Publish(ctx context.Context, event a2a.Event) error
	Finish()
}

type Executor struct {
	registry      *skills.Registry
	timeout       time.Duration
	runs          *runRegistry
	continuations sync.WaitGroup
}

type ExecutorOption func(*Executor)

func WithRegistry(registry *skills.Registry) ExecutorOption {
	return func(executor *Executor) {
		executor.registry = registry
	}
}

/*
WithHandlerTimeout bounds every handler and continuation. Zero keeps the
default.
*/
func WithHandlerTimeout(timeout time.Duration) ExecutorOption {
	return func(executor *Executor) {
		if timeout > 0 {
			executor.timeout = timeout
		}
	}
}

func NewExecutor(options ...ExecutorOption) *Executor {
	executor := &Executor{
		timeout: DefaultHandlerTimeout,
		runs:    newRunRegistry(),
	}

	for _, option := range options {
		option(executor)
	}

	if executor.registry == nil {
		executor.registry = skills.NewRegistry()
	}

	return executor
}

/*
Execute publishes the submitted task when reqCtx carries no stored task,
runs the handler for the message's intent, and publishes the final event.
When the handler defers completion, Execute returns with the task still
open and a tracked continuation finalizes it later.

Any failure outside the handler is converted into a failed final event
tagged agent_error; the error is only returned when even that could not be
published.
*/
func (executor *Executor) Execute(ctx context.Context, reqCtx *RequestContext, bus Bus) (err error) {
	r, err := executor.runs.start(ctx, reqCtx, bus)

	if err != nil {
		return err
	}

	handedOff := false

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic during execution: %v", recovered)
		}

		if !handedOff {
			defer executor.runs.remove(r)
		}

		if err == nil {
			return
		}

		log.Error("execution failed", "taskId", reqCtx.TaskID, "error", err)

		published, finalErr := r.finalize(
			context.WithoutCancel(ctx),
			finalEvent(reqCtx, "", failure(err.Error(), ErrorTypeAgent)),
		)

		if published && finalErr == nil {
			err = nil
		}
	}()

	if reqCtx.Task == nil {
		if err := bus.Publish(ctx, NewSubmittedTask(reqCtx)); err != nil {
			return fmt.Errorf("failed to publish submitted task: %w", err)
		}
	}

	in := intent.Classify(reqCtx.Message.FirstText())
	handler := executor.registry.Lookup(in)

	log.Info("executing task", "taskId", reqCtx.TaskID, "intent", in)

	request := &skills.Request{
		Text:      reqCtx.Message.FirstText(),
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Publisher: progressOnly{bus: bus},
	}

	result := executor.invoke(r, func(ctx context.Context) (*skills.Result, error) {
		return handler.Handle(ctx, request)
	})

	if result == nil {
		return nil
	}

	if result.AwaitingMore() {
		handedOff = true
		executor.continuations.Add(1)
		go executor.continueInBackground(r, in, result)
		return nil
	}

	if _, err := r.finalize(context.WithoutCancel(ctx), finalEvent(reqCtx, in, result)); err != nil {
		return fmt.Errorf("failed to publish final event: %w", err)
	}

	return nil
}

/*
Cancel aborts whatever is in flight for taskID (a handler or a pending
continuation) and publishes the canceled final event. The event is charged
to the task it cancels, whoever asked.
*/
func (executor *Executor) Cancel(ctx context.Context, taskID string) error {
	r, ok := executor.runs.get(taskID)

	if !ok {
		return ErrNotRunning
	}

	r.canceled.Store(true)
	r.cancel()
	defer executor.runs.remove(r)

	msg := a2a.NewTextMessage(a2a.RoleAgent, "Task canceled")
	msg.TaskID = r.reqCtx.TaskID
	msg.ContextID = r.reqCtx.ContextID

	event := a2a.NewStatusUpdateEvent(r.reqCtx.TaskID, r.reqCtx.ContextID, a2a.TaskStateCanceled, msg, true)
	event.Metadata = map[string]any{
		skills.KeyCreditsUsed: skills.CostFailure,
		MetadataIntent:        string(intent.Classify(r.reqCtx.Message.FirstText())),
	}
	msg.Metadata = event.Metadata

	published, err := r.finalize(ctx, event)

	if err != nil {
		return err
	}

	if !published {
		return ErrAlreadyFinal
	}

	log.Info("task canceled", "taskId", taskID)

	return nil
}

/*
Running reports whether taskID has an execution or continuation in flight.
*/
func (executor *Executor) Running(taskID string) bool {
	_, ok := executor.runs.get(taskID)
	return ok
}

/*
Wait blocks until every continuation handed off by Execute has published its
final event. Callers stop new executions first.
*/
func (executor *Executor) Wait() {
	executor.continuations.Wait()
}

func (executor *Executor) continueInBackground(r *run, in intent.Intent, pending *skills.Result) {
	defer executor.continuations.Done()
	defer executor.runs.remove(r)

	result := executor.invoke(r, pending.Continuation)

	if result == nil {
		return
	}

	if result.AwaitingMore() {
		result = failure("continuation deferred completion again", ErrorTypeProcessing)
	}

	if _, err := r.finalize(context.WithoutCancel(r.ctx), finalEvent(r.reqCtx, in, result)); err != nil {
		log.Error("failed to publish final event", "taskId", r.reqCtx.TaskID, "error", err)
	}
}

/*
invoke runs fn under the handler timeout and converts every way it can go
wrong into a failed result. It returns nil when the run was canceled, since
Cancel owns the final event then.
*/
func (executor *Executor) invoke(
	r *run, fn func(context.Context) (*skills.Result, error),
) *skills.Result {
	ctx, cancel := context.WithTimeout(r.ctx, executor.timeout)
	defer cancel()

	type outcome struct {
		result *skills.Result
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", recovered)}
			}
		}()

		result, err := fn(ctx)
		done <- outcome{result: result, err: err}
	}()

	var out outcome

	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	if r.canceled.Load() {
		return nil
	}

	switch {
	case errors.Is(out.err, context.Canceled):
		log.Warn("handler interrupted", "taskId", r.reqCtx.TaskID)
		return failure("task interrupted: the agent is shutting down", ErrorTypeAgent)
	case errors.Is(out.err, context.DeadlineExceeded):
		log.Warn("handler timed out", "taskId", r.reqCtx.TaskID, "timeout", executor.timeout)
		return failure(fmt.Sprintf("task timed out after %s", executor.timeout), ErrorTypeProcessing)
	case out.err != nil:
		log.Error("handler failed", "taskId", r.reqCtx.TaskID, "error", out.err)
		return failure(out.err.Error(), ErrorTypeProcessing)
	case out.result == nil:
		return failure("handler returned no result", ErrorTypeProcessing)
	}

	return validate(r.reqCtx.TaskID, out.result)
}

/*
validate enforces the result contract: a terminal state and a creditsUsed of
at least one, unless the result defers to a continuation.
*/
func validate(taskID string, result *skills.Result) *skills.Result {
	if result.AwaitingMore() {
		return result
	}

	if !result.State.Terminal() {
		log.Error("handler returned a non-terminal result", "taskId", taskID, "state", result.State)
		return failure(fmt.Sprintf("handler returned non-terminal state %q", result.State), ErrorTypeProcessing)
	}

	if credits, ok := result.CreditsUsed(); !ok || credits < 1 {
		log.Error("handler result violates the credit contract", "taskId", taskID, "creditsUsed", result.Metadata[skills.KeyCreditsUsed])
		return failure("handler did not report creditsUsed", ErrorTypeProcessing)
	}

	return result
}

func failure(message string, errorType string) *skills.Result {
	if message == "" {
		message = "An unexpected error occurred"
	}

	return skills.Failed(message, map[string]any{
		skills.KeyErrorType: errorType,
		skills.KeyError:     message,
	})
}

/*
finalEvent wraps result as the agent's closing message.
*/
func finalEvent(reqCtx *RequestContext, in intent.Intent, result *skills.Result) *a2a.TaskStatusUpdateEvent {
	metadata := make(map[string]any, len(result.Metadata)+1)

	for k, v := range result.Metadata {
		metadata[k] = v
	}

	if in != "" {
		metadata[MetadataIntent] = string(in)
	}

	msg := a2a.NewMessage(a2a.RoleAgent, result.Parts...)
	msg.TaskID = reqCtx.TaskID
	msg.ContextID = reqCtx.ContextID
	msg.Metadata = metadata

	event := a2a.NewStatusUpdateEvent(reqCtx.TaskID, reqCtx.ContextID, result.State, msg, true)
	event.Metadata = metadata

	return event
}

/*
progressOnly is the publisher handed to handlers. Final events belong to the
executor.
*/
type progressOnly struct {
	bus Bus
}

func (publisher progressOnly) Publish(ctx context.Context, event a2a.Event) error {
	if update, ok := event.(*a2a.TaskStatusUpdateEvent); ok && update.Final {
		return errFinalEvent
	}

	return publisher.bus.Publish(ctx, event)
}
