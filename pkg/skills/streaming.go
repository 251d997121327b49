package skills

import (
	"context"
	"fmt"
	"time"

	"github.com/theapemachine/a2a-payments/pkg/a2a"
)

const (
	DefaultStreamTicks    = 10
	DefaultStreamInterval = time.Second
	DefaultPushDelay      = 5 * time.Second
)

/*
Streaming emits Ticks working events, one per Interval, then one more
announcing the end of the stream. It never publishes the final event; the
executor does that from the returned result. A canceled ctx aborts the loop
between ticks.
*/
type Streaming struct {
	Ticks    int
	Interval time.Duration
}

func (handler *Streaming) Handle(ctx context.Context, req *Request) (*Result, error) {
	ticks := handler.Ticks

	if ticks <= 0 {
		ticks = DefaultStreamTicks
	}

	for i := 1; i <= ticks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := req.Progress(
			ctx,
			fmt.Sprintf("Streaming message %d/%d", i, ticks),
			map[string]any{"progress": i, "total": ticks},
		); err != nil {
			return nil, err
		}

		if err := sleep(ctx, handler.Interval); err != nil {
			return nil, err
		}
	}

	if err := req.Progress(
		ctx, "Streaming finished", map[string]any{"progress": ticks, "total": ticks},
	); err != nil {
		return nil, err
	}

	return Completed(
		fmt.Sprintf("Stream completed: sent %d messages", ticks),
		CostStreaming,
		map[string]any{"messagesSent": ticks},
	), nil
}

/*
PushNotification answers immediately with a working result and finishes in
the background after Delay. The delay stands in for waiting on the client to
register its push endpoint.
*/
type PushNotification struct {
	Delay time.Duration
}

func (handler *PushNotification) Handle(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Progress(
		ctx, "Push notification task started. The result will be delivered to your push endpoint.", nil,
	); err != nil {
		return nil, err
	}

	delay := handler.Delay

	result := newResult(
		a2a.TaskStateWorking,
		"Push notification task is running in the background.",
		0,
		map[string]any{"delayMs": delay.Milliseconds()},
	)

	result.Continuation = func(ctx context.Context) (*Result, error) {
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}

		return Completed(
			"Push notification task completed",
			CostPushNotification,
			map[string]any{"delayMs": delay.Milliseconds()},
		), nil
	}

	return result, nil
}
