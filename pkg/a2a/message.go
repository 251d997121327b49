package a2a

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

/*
Message represents all non‑artifact communication between client & agent.
*/
type Message struct {
	Kind      string         `json:"kind"`
	MessageID string         `json:"messageId"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	TaskID    string         `json:"taskId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewMessage(role Role, parts ...Part) *Message {
	return &Message{
		Kind:      KindMessage,
		MessageID: uuid.NewString(),
		Role:      role,
		Parts:     parts,
	}
}

func NewTextMessage(role Role, text string) *Message {
	return NewMessage(role, NewTextPart(text))
}

/*
FirstText returns the text of the first text part, or an empty string when
the message carries none.
*/
func (msg *Message) FirstText() string {
	for _, part := range msg.Parts {
		if part.Kind == PartKindText {
			return part.Text
		}
	}

	return ""
}

/*
String joins all text parts with a newline.
*/
func (msg *Message) String() string {
	var texts []string

	for _, part := range msg.Parts {
		if part.Kind == PartKindText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "\n")
}

func (msg *Message) GetKind() string {
	return KindMessage
}

func (msg *Message) GetTaskID() string {
	return msg.TaskID
}

func (msg *Message) clone() Message {
	out := *msg
	out.Parts = append([]Part(nil), msg.Parts...)
	out.Metadata = cloneMap(msg.Metadata)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))

	for k, v := range in {
		out[k] = v
	}

	return out
}
