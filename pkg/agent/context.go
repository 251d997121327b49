package agent

import (
	"github.com/google/uuid"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
)

// Request metadata keys.
const (
	MetadataBearerToken = "bearerToken"
	MetadataIntent      = "intent"
)

/*
RequestContext is everything the executor needs to know about one inbound
message. Task is nil for a new task and holds the stored task when the
message continues an existing one.
*/
type RequestContext struct {
	TaskID    string
	ContextID string
	Message   *a2a.Message
	Task      *a2a.Task
	Metadata  map[string]any
}

/*
NewRequestContext resolves the task and context ids for msg, generating the
ones the caller did not supply, and stamps them onto a copy of the message.
*/
func NewRequestContext(msg a2a.Message, stored *a2a.Task, metadata map[string]any) *RequestContext {
	taskID := msg.TaskID
	contextID := msg.ContextID

	if stored != nil {
		taskID = stored.ID

		if contextID == "" {
			contextID = stored.ContextID
		}
	}

	if taskID == "" {
		taskID = uuid.NewString()
	}

	if contextID == "" {
		contextID = uuid.NewString()
	}

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	msg.Kind = a2a.KindMessage
	msg.TaskID = taskID
	msg.ContextID = contextID

	if metadata == nil {
		metadata = map[string]any{}
	}

	return &RequestContext{
		TaskID:    taskID,
		ContextID: contextID,
		Message:   &msg,
		Task:      stored,
		Metadata:  metadata,
	}
}

func (reqCtx *RequestContext) BearerToken() string {
	token, _ := reqCtx.Metadata[MetadataBearerToken].(string)
	return token
}

/*
NewSubmittedTask builds the record for a task seen for the first time, with
its history seeded by the inbound message.
*/
func NewSubmittedTask(reqCtx *RequestContext) *a2a.Task {
	return &a2a.Task{
		Kind:      a2a.KindTask,
		ID:        reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Status:    a2a.NewTaskStatus(a2a.TaskStateSubmitted, nil),
		History:   []a2a.Message{*reqCtx.Message},
	}
}
