package a2a

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

/*
Task is a unit of agent work, tracked through status events to a terminal
state.
*/
type Task struct {
	Kind      string         `json:"kind"`
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (task *Task) GetKind() string {
	return KindTask
}

func (task *Task) GetTaskID() string {
	return task.ID
}

func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}

	return &task.History[len(task.History)-1]
}

/*
Clone returns a copy that shares no slices or maps with the original, so
stored tasks can be handed out without exposing them to mutation.
*/
func (task *Task) Clone() *Task {
	out := *task
	out.Metadata = cloneMap(task.Metadata)

	if task.Status.Message != nil {
		msg := task.Status.Message.clone()
		out.Status.Message = &msg
	}

	if task.History != nil {
		out.History = make([]Message, len(task.History))

		for i := range task.History {
			out.History[i] = task.History[i].clone()
		}
	}

	return &out
}

/*
TrimHistory keeps only the last n messages. A non-positive n leaves the
history untouched.
*/
func (task *Task) TrimHistory(n int) {
	if n <= 0 || len(task.History) <= n {
		return
	}

	task.History = task.History[len(task.History)-n:]
}

func (task *Task) String() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	indent := "   "
	bullet := "│ "

	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")

	if task.ContextID != "" {
		sb.WriteString(bullet + labelStyle.Render("Context ID: ") + valueStyle.Render(task.ContextID) + "\n")
	}

	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status.State)) + "\n")

	if task.Status.Message != nil {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.String()) + "\n")
	}

	if task.Status.Timestamp != nil {
		sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(task.Status.Timestamp.Format(time.RFC3339)) + "\n")
	}

	if len(task.History) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("History") + "\n")

		for i, message := range task.History {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(string(message.Role)) + "\n")

			for _, part := range message.Parts {
				if part.Kind != PartKindText {
					continue
				}

				sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	var metadata map[string]any

	if task.Status.Message != nil {
		metadata = task.Status.Message.Metadata
	}

	if len(metadata) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(metadata))

		for k := range metadata {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			sb.WriteString(bullet + labelStyle.Render(k+": ") + valueStyle.Render(fmt.Sprintf("%v", metadata[k])) + "\n")
		}
	}

	return sb.String()
}
