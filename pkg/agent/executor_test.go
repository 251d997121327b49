package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/intent"
	"github.com/theapemachine/a2a-payments/pkg/skills"
)

type recordingBus struct {
	mu        sync.Mutex
	events    []a2a.Event
	closed    bool
	finished  int
	failFirst bool
	final     chan struct{}
}

func newRecordingBus() *recordingBus {
	return &recordingBus{final: make(chan struct{})}
}

func (bus *recordingBus) Publish(ctx context.Context, event a2a.Event) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.failFirst {
		bus.failFirst = false
		return errors.New("transport unavailable")
	}

	if bus.closed {
		return ErrBusClosed
	}

	bus.events = append(bus.events, event)

	if update, ok := event.(*a2a.TaskStatusUpdateEvent); ok && update.Final {
		bus.closed = true
		close(bus.final)
	}

	return nil
}

func (bus *recordingBus) Finish() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.finished++
}

func (bus *recordingBus) snapshot() []a2a.Event {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return append([]a2a.Event(nil), bus.events...)
}

func (bus *recordingBus) waitFinal(timeout time.Duration) bool {
	select {
	case <-bus.final:
		return true
	case <-time.After(timeout):
		return false
	}
}

func finals(events []a2a.Event) []*a2a.TaskStatusUpdateEvent {
	var out []*a2a.TaskStatusUpdateEvent

	for _, event := range events {
		if update, ok := event.(*a2a.TaskStatusUpdateEvent); ok && update.Final {
			out = append(out, update)
		}
	}

	return out
}

func lastUpdate(events []a2a.Event) *a2a.TaskStatusUpdateEvent {
	update, _ := events[len(events)-1].(*a2a.TaskStatusUpdateEvent)
	return update
}

func newContext(text string) *RequestContext {
	return NewRequestContext(*a2a.NewTextMessage(a2a.RoleUser, text), nil, nil)
}

func fastRegistry(options ...skills.RegistryOption) *skills.Registry {
	options = append([]skills.RegistryOption{
		skills.WithStreaming(10, time.Millisecond),
		skills.WithPushDelay(20 * time.Millisecond),
	}, options...)

	return skills.NewRegistry(options...)
}

func TestNewRequestContext(t *testing.T) {
	Convey("Given a message without ids", t, func() {
		reqCtx := newContext("hello")

		Convey("Then ids are generated and stamped on the message", func() {
			So(reqCtx.TaskID, ShouldNotBeEmpty)
			So(reqCtx.ContextID, ShouldNotBeEmpty)
			So(reqCtx.Message.TaskID, ShouldEqual, reqCtx.TaskID)
			So(reqCtx.Message.ContextID, ShouldEqual, reqCtx.ContextID)
			So(reqCtx.Task, ShouldBeNil)
		})
	})

	Convey("Given a message continuing a stored task", t, func() {
		stored := &a2a.Task{ID: "task-1", ContextID: "ctx-1"}
		msg := a2a.NewTextMessage(a2a.RoleUser, "more")
		reqCtx := NewRequestContext(*msg, stored, map[string]any{MetadataBearerToken: "tok"})

		Convey("Then the stored ids win and the token is readable", func() {
			So(reqCtx.TaskID, ShouldEqual, "task-1")
			So(reqCtx.ContextID, ShouldEqual, "ctx-1")
			So(reqCtx.BearerToken(), ShouldEqual, "tok")
		})
	})
}

func TestExecuteSimpleTask(t *testing.T) {
	Convey("Given an executor and a new calculation task", t, func() {
		executor := NewExecutor(WithRegistry(fastRegistry()))
		bus := newRecordingBus()
		reqCtx := newContext("Calculate 15 * 7")

		Convey("When executing", func() {
			err := executor.Execute(context.Background(), reqCtx, bus)
			events := bus.snapshot()

			Convey("Then the submitted task comes first and one final event last", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 2)

				task, ok := events[0].(*a2a.Task)
				So(ok, ShouldBeTrue)
				So(task.Status.State, ShouldEqual, a2a.TaskStateSubmitted)
				So(len(task.History), ShouldEqual, 1)

				final := lastUpdate(events)
				So(final.Final, ShouldBeTrue)
				So(final.Status.State, ShouldEqual, a2a.TaskStateCompleted)
				So(final.Metadata[skills.KeyCreditsUsed], ShouldEqual, skills.CostCalculation)
				So(final.Metadata[MetadataIntent], ShouldEqual, string(intent.Calculation))
				So(final.Status.Message.Role, ShouldEqual, a2a.RoleAgent)
				So(final.Status.Message.String(), ShouldContainSubstring, "105")
				So(bus.finished, ShouldEqual, 1)
				So(executor.Running(reqCtx.TaskID), ShouldBeFalse)
			})
		})

		Convey("When the task already exists", func() {
			reqCtx.Task = NewSubmittedTask(reqCtx)
			_ = executor.Execute(context.Background(), reqCtx, bus)

			Convey("Then no submitted task is published", func() {
				events := bus.snapshot()
				So(len(events), ShouldEqual, 1)
				So(lastUpdate(events).Final, ShouldBeTrue)
			})
		})
	})
}

func TestExecuteStreaming(t *testing.T) {
	Convey("Given a streaming task", t, func() {
		executor := NewExecutor(WithRegistry(fastRegistry()))
		bus := newRecordingBus()

		err := executor.Execute(context.Background(), newContext("start a stream"), bus)
		events := bus.snapshot()

		Convey("Then 11 progress events precede exactly one final event", func() {
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 13)

			nonFinal := 0

			for _, event := range events[1 : len(events)-1] {
				update := event.(*a2a.TaskStatusUpdateEvent)
				So(update.Final, ShouldBeFalse)
				nonFinal++
			}

			So(nonFinal, ShouldEqual, 11)
			So(len(finals(events)), ShouldEqual, 1)
			So(lastUpdate(events).Final, ShouldBeTrue)
			So(lastUpdate(events).Metadata[skills.KeyCreditsUsed], ShouldEqual, skills.CostStreaming)
		})
	})
}

func TestExecutePushNotification(t *testing.T) {
	Convey("Given a push notification task", t, func() {
		executor := NewExecutor(WithRegistry(fastRegistry()))
		bus := newRecordingBus()
		reqCtx := newContext("test push notification")

		err := executor.Execute(context.Background(), reqCtx, bus)

		Convey("Then Execute returns with the task still open", func() {
			So(err, ShouldBeNil)
			So(len(finals(bus.snapshot())), ShouldEqual, 0)
			So(executor.Running(reqCtx.TaskID), ShouldBeTrue)

			Convey("And a completed final event follows exactly once", func() {
				So(bus.waitFinal(time.Second), ShouldBeTrue)
				time.Sleep(30 * time.Millisecond)

				events := bus.snapshot()
				So(len(finals(events)), ShouldEqual, 1)

				final := lastUpdate(events)
				So(final.Status.State, ShouldEqual, a2a.TaskStateCompleted)
				So(final.Metadata[skills.KeyCreditsUsed], ShouldEqual, skills.CostPushNotification)
				So(executor.Running(reqCtx.TaskID), ShouldBeFalse)
			})
		})

		Convey("When a second message arrives while it is pending", func() {
			second := NewRequestContext(*a2a.NewTextMessage(a2a.RoleUser, "hi"), &a2a.Task{ID: reqCtx.TaskID}, nil)
			err := executor.Execute(context.Background(), second, newRecordingBus())

			Convey("Then it is rejected as busy", func() {
				So(errors.Is(err, ErrTaskBusy), ShouldBeTrue)
			})
		})
	})
}

func TestExecuteFailures(t *testing.T) {
	Convey("Given handlers that misbehave", t, func() {
		failing := skills.HandlerFunc(func(ctx context.Context, req *skills.Request) (*skills.Result, error) {
			return nil, errors.New("upstream exploded")
		})

		panicking := skills.HandlerFunc(func(ctx context.Context, req *skills.Request) (*skills.Result, error) {
			panic("boom")
		})

		hanging := skills.HandlerFunc(func(ctx context.Context, req *skills.Request) (*skills.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		stubborn := skills.HandlerFunc(func(ctx context.Context, req *skills.Request) (*skills.Result, error) {
			time.Sleep(200 * time.Millisecond)
			return skills.Completed("late", 1, nil), nil
		})

		freeLunch := skills.HandlerFunc(func(ctx context.Context, req *skills.Request) (*skills.Result, error) {
			return &skills.Result{State: a2a.TaskStateCompleted, Parts: []a2a.Part{a2a.NewTextPart("free")}}, nil
		})

		sneaky := skills.HandlerFunc(func(ctx context.Context, req *skills.Request) (*skills.Result, error) {
			err := req.Publisher.Publish(ctx, a2a.NewStatusUpdateEvent(req.TaskID, req.ContextID, a2a.TaskStateCompleted, nil, true))
			return nil, err
		})

		run := func(handler skills.Handler, options ...ExecutorOption) *a2a.TaskStatusUpdateEvent {
			options = append(options, WithRegistry(skills.NewRegistry(skills.WithHandler(intent.General, handler))))
			bus := newRecordingBus()
			So(NewExecutor(options...).Execute(context.Background(), newContext("anything"), bus), ShouldBeNil)

			events := bus.snapshot()
			So(len(finals(events)), ShouldEqual, 1)

			return lastUpdate(events)
		}

		Convey("Then a returned error becomes a processing_error", func() {
			final := run(failing)
			So(final.Status.State, ShouldEqual, a2a.TaskStateFailed)
			So(final.Metadata[skills.KeyErrorType], ShouldEqual, ErrorTypeProcessing)
			So(final.Metadata[skills.KeyError], ShouldEqual, "upstream exploded")
			So(final.Metadata[skills.KeyCreditsUsed], ShouldEqual, 1)
		})

		Convey("Then a panic becomes a processing_error", func() {
			final := run(panicking)
			So(final.Metadata[skills.KeyErrorType], ShouldEqual, ErrorTypeProcessing)
		})

		Convey("Then a hung handler is bounded by the timeout", func() {
			final := run(hanging, WithHandlerTimeout(20*time.Millisecond))
			So(final.Status.State, ShouldEqual, a2a.TaskStateFailed)
			So(final.Status.Message.String(), ShouldContainSubstring, "timed out")
		})

		Convey("Then a handler ignoring its context is abandoned at the timeout", func() {
			final := run(stubborn, WithHandlerTimeout(20*time.Millisecond))
			So(final.Status.State, ShouldEqual, a2a.TaskStateFailed)
		})

		Convey("Then a result without credits is rejected", func() {
			final := run(freeLunch)
			So(final.Status.State, ShouldEqual, a2a.TaskStateFailed)
			So(final.Metadata[skills.KeyCreditsUsed], ShouldEqual, 1)
		})

		Convey("Then handlers cannot publish the final event themselves", func() {
			final := run(sneaky)
			So(final.Status.State, ShouldEqual, a2a.TaskStateFailed)
		})
	})

	Convey("Given a bus that rejects the submitted task", t, func() {
		bus := newRecordingBus()
		bus.failFirst = true

		err := NewExecutor(WithRegistry(fastRegistry())).Execute(context.Background(), newContext("hello"), bus)

		Convey("Then the outer boundary publishes an agent_error final event", func() {
			So(err, ShouldBeNil)
			events := bus.snapshot()
			So(len(events), ShouldEqual, 1)
			So(lastUpdate(events).Status.State, ShouldEqual, a2a.TaskStateFailed)
			So(lastUpdate(events).Metadata[skills.KeyErrorType], ShouldEqual, ErrorTypeAgent)
		})
	})
}

func TestCancel(t *testing.T) {
	Convey("Given a slow streaming task", t, func() {
		executor := NewExecutor(WithRegistry(skills.NewRegistry(skills.WithStreaming(10, 50*time.Millisecond))))
		bus := newRecordingBus()
		reqCtx := newContext("stream it")
		done := make(chan error, 1)

		go func() {
			done <- executor.Execute(context.Background(), reqCtx, bus)
		}()

		time.Sleep(80 * time.Millisecond)

		Convey("When it is canceled mid-stream", func() {
			So(executor.Cancel(context.Background(), reqCtx.TaskID), ShouldBeNil)
			So(<-done, ShouldBeNil)
			time.Sleep(60 * time.Millisecond)

			Convey("Then a single canceled final event ends the stream", func() {
				events := bus.snapshot()
				So(len(finals(events)), ShouldEqual, 1)
				So(lastUpdate(events).Status.State, ShouldEqual, a2a.TaskStateCanceled)
				So(lastUpdate(events).Metadata[skills.KeyCreditsUsed], ShouldEqual, 1)
				So(lastUpdate(events).Metadata[MetadataIntent], ShouldEqual, string(intent.Streaming))
				So(len(events), ShouldBeLessThan, 13)
				So(executor.Running(reqCtx.TaskID), ShouldBeFalse)
			})
		})
	})

	Convey("Given a pending push notification", t, func() {
		executor := NewExecutor(WithRegistry(skills.NewRegistry(skills.WithPushDelay(100 * time.Millisecond))))
		bus := newRecordingBus()
		reqCtx := newContext("push notification please")

		So(executor.Execute(context.Background(), reqCtx, bus), ShouldBeNil)

		Convey("When it is canceled before the delay elapses", func() {
			So(executor.Cancel(context.Background(), reqCtx.TaskID), ShouldBeNil)
			time.Sleep(150 * time.Millisecond)

			Convey("Then the continuation never finalizes", func() {
				events := bus.snapshot()
				So(len(finals(events)), ShouldEqual, 1)
				So(lastUpdate(events).Status.State, ShouldEqual, a2a.TaskStateCanceled)
			})
		})
	})

	Convey("Given no execution for a task", t, func() {
		Convey("Then Cancel reports it is not running", func() {
			err := NewExecutor().Cancel(context.Background(), "nope")
			So(errors.Is(err, ErrNotRunning), ShouldBeTrue)
		})
	})
}

func TestWait(t *testing.T) {
	Convey("Given a push notification waiting out a long delay", t, func() {
		executor := NewExecutor(WithRegistry(skills.NewRegistry(skills.WithPushDelay(time.Hour))))
		bus := newRecordingBus()
		reqCtx := newContext("test push notification")
		ctx, cancel := context.WithCancel(context.Background())

		So(executor.Execute(ctx, reqCtx, bus), ShouldBeNil)
		So(executor.Running(reqCtx.TaskID), ShouldBeTrue)

		Convey("When the execution context ends and Wait returns", func() {
			cancel()

			waited := make(chan struct{})

			go func() {
				executor.Wait()
				close(waited)
			}()

			select {
			case <-waited:
			case <-time.After(time.Second):
			}

			Convey("Then the task was finalized as interrupted", func() {
				So(bus.waitFinal(time.Second), ShouldBeTrue)

				events := bus.snapshot()
				So(len(finals(events)), ShouldEqual, 1)

				final := lastUpdate(events)
				So(final.Status.State, ShouldEqual, a2a.TaskStateFailed)
				So(final.Metadata[skills.KeyErrorType], ShouldEqual, ErrorTypeAgent)
				So(final.Metadata[skills.KeyCreditsUsed], ShouldEqual, skills.CostFailure)
				So(executor.Running(reqCtx.TaskID), ShouldBeFalse)
			})
		})
	})
}
