package a2a

import (
	"encoding/json"
	"fmt"
)

const (
	KindTask         = "task"
	KindMessage      = "message"
	KindStatusUpdate = "status-update"
)

/*
Event is anything the agent publishes on a task's event stream.
*/
type Event interface {
	GetKind() string
	GetTaskID() string
}

/*
TaskStatusUpdateEvent is sent when the agent wishes to inform the client of
a status transition. Exactly one event per task carries Final.
*/
type TaskStatusUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewStatusUpdateEvent(
	taskID, contextID string, state TaskState, message *Message, final bool,
) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		Kind:      KindStatusUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Status:    NewTaskStatus(state, message),
		Final:     final,
	}
}

func (event *TaskStatusUpdateEvent) GetKind() string {
	return KindStatusUpdate
}

func (event *TaskStatusUpdateEvent) GetTaskID() string {
	return event.TaskID
}

/*
StreamEvent is the client-side decoding of one streamed result.
*/
type StreamEvent struct {
	Kind         string
	Task         *Task
	StatusUpdate *TaskStatusUpdateEvent
	Message      *Message
	Raw          json.RawMessage
	final        bool
}

/*
DecodeEvent inspects the kind discriminator of a streamed result and decodes
it into the matching type. A result is considered final when either its
top-level final flag or its status.final flag is set.
*/
func DecodeEvent(raw json.RawMessage) (*StreamEvent, error) {
	var probe struct {
		Kind   string `json:"kind"`
		Final  bool   `json:"final"`
		Status struct {
			Final bool `json:"final"`
		} `json:"status"`
	}

	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	event := &StreamEvent{
		Kind:  probe.Kind,
		Raw:   raw,
		final: probe.Final || probe.Status.Final,
	}

	var err error

	switch probe.Kind {
	case KindTask:
		event.Task = &Task{}
		err = json.Unmarshal(raw, event.Task)
	case KindStatusUpdate:
		event.StatusUpdate = &TaskStatusUpdateEvent{}
		err = json.Unmarshal(raw, event.StatusUpdate)
	case KindMessage:
		event.Message = &Message{}
		err = json.Unmarshal(raw, event.Message)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", probe.Kind, err)
	}

	return event, nil
}

func (event *StreamEvent) Final() bool {
	return event.final
}

/*
State returns the task state carried by the event, if any.
*/
func (event *StreamEvent) State() TaskState {
	switch {
	case event.StatusUpdate != nil:
		return event.StatusUpdate.Status.State
	case event.Task != nil:
		return event.Task.Status.State
	default:
		return ""
	}
}

/*
Text returns the text of the status message carried by the event, if any.
*/
func (event *StreamEvent) Text() string {
	switch {
	case event.StatusUpdate != nil && event.StatusUpdate.Status.Message != nil:
		return event.StatusUpdate.Status.Message.String()
	case event.Task != nil && event.Task.Status.Message != nil:
		return event.Task.Status.Message.String()
	case event.Message != nil:
		return event.Message.String()
	default:
		return ""
	}
}
