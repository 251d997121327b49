/*
Package skills holds the canned task handlers the agent routes messages to.
Every handler returns a Result whose metadata carries the credit cost under
KeyCreditsUsed.
*/
package skills

import (
	"context"
	"encoding/json"
	"time"

	"github.com/theapemachine/a2a-payments/pkg/a2a"
)

// Metadata keys shared with the executor and the credit-burning step.
const (
	KeyCreditsUsed = "creditsUsed"
	KeyErrorType   = "errorType"
	KeyError       = "error"
)

// Credit costs per operation.
const (
	CostGreeting         = 1
	CostCalculation      = 2
	CostWeather          = 3
	CostTranslation      = 4
	CostStreaming        = 5
	CostPushNotification = 5
	CostGeneral          = 1
	CostFailure          = 1
)

/*
Publisher accepts events for the task a handler is working on.
*/
type Publisher interface {
	Publish(ctx context.Context, event a2a.Event) error
}

/*
Request is what a handler gets to work with.
*/
type Request struct {
	Text      string
	TaskID    string
	ContextID string
	Publisher Publisher
}

/*
Progress publishes a non-final working event carrying text.
*/
func (req *Request) Progress(ctx context.Context, text string, metadata map[string]any) error {
	if req.Publisher == nil {
		return nil
	}

	msg := a2a.NewTextMessage(a2a.RoleAgent, text)
	msg.TaskID = req.TaskID
	msg.ContextID = req.ContextID

	event := a2a.NewStatusUpdateEvent(req.TaskID, req.ContextID, a2a.TaskStateWorking, msg, false)
	event.Metadata = metadata

	return req.Publisher.Publish(ctx, event)
}

/*
Continuation finishes a task after its handler has returned. The executor
runs it in the background and publishes its result as the final event.
*/
type Continuation func(ctx context.Context) (*Result, error)

/*
Result is the outcome of a handler.
*/
type Result struct {
	Parts        []a2a.Part
	Metadata     map[string]any
	State        a2a.TaskState
	Continuation Continuation
}

func Completed(text string, credits int, metadata map[string]any) *Result {
	return newResult(a2a.TaskStateCompleted, text, credits, metadata)
}

/*
Failed is a user-input failure surfaced as a result rather than an error.
It always costs CostFailure.
*/
func Failed(text string, metadata map[string]any) *Result {
	return newResult(a2a.TaskStateFailed, text, CostFailure, metadata)
}

func newResult(state a2a.TaskState, text string, credits int, metadata map[string]any) *Result {
	out := make(map[string]any, len(metadata)+1)

	for k, v := range metadata {
		out[k] = v
	}

	out[KeyCreditsUsed] = credits

	return &Result{
		Parts:    []a2a.Part{a2a.NewTextPart(text)},
		Metadata: out,
		State:    state,
	}
}

/*
AwaitingMore reports whether the task stays open after the handler returns.
*/
func (result *Result) AwaitingMore() bool {
	return result.Continuation != nil
}

func (result *Result) Text() string {
	for _, part := range result.Parts {
		if part.Kind == a2a.PartKindText {
			return part.Text
		}
	}

	return ""
}

func (result *Result) CreditsUsed() (int, bool) {
	return Credits(result.Metadata)
}

/*
Credits reads KeyCreditsUsed from metadata, accepting the numeric types it
can take before and after a JSON round trip.
*/
func Credits(metadata map[string]any) (int, bool) {
	switch v := metadata[KeyCreditsUsed].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}

		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

/*
sleep waits for d or until ctx is done, whichever comes first.
*/
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
