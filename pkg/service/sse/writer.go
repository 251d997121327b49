package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/errors"
	"github.com/theapemachine/a2a-payments/pkg/jsonrpc"
)

const DefaultHeartbeat = 15 * time.Second

var heartbeatFrame = []byte(": heartbeat\n\n")

/*
WriteEvents frames every event as a JSON-RPC response carrying id and
flushes it:

	data: {"jsonrpc":"2.0","id":<id>,"result":<event>}\n\n

A comment heartbeat is written whenever the stream has been idle for
heartbeat. It returns after the final event, when events is closed, when ctx
is done, or when a write fails because the client went away.
*/
func WriteEvents(
	ctx context.Context, w *bufio.Writer, id json.RawMessage, events <-chan a2a.Event, heartbeat time.Duration,
) error {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}

			if err := WriteEvent(w, id, event); err != nil {
				return err
			}

			if IsFinal(event) {
				return nil
			}

			ticker.Reset(heartbeat)
		case <-ticker.C:
			if _, err := w.Write(heartbeatFrame); err != nil {
				return err
			}

			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

func WriteEvent(w *bufio.Writer, id json.RawMessage, event a2a.Event) error {
	data, err := json.Marshal(jsonrpc.NewResponse(id, event))

	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}

	return w.Flush()
}

/*
WriteError sends a JSON-RPC error as the last frame of a stream.
*/
func WriteError(w *bufio.Writer, id json.RawMessage, rpcErr *errors.RpcError) error {
	data, err := json.Marshal(jsonrpc.NewErrorResponse(id, rpcErr))

	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}

	return w.Flush()
}

func IsFinal(event a2a.Event) bool {
	update, ok := event.(*a2a.TaskStatusUpdateEvent)
	return ok && update.Final
}
