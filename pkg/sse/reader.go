package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event represents a Server-Sent Event
type Event struct {
	ID    string
	Event string
	Data  []byte
}

/*
Reader splits a server-sent-event byte stream into frames. Frames are
delimited by a blank line; comment lines (heartbeats) are skipped and
multiple data lines are joined with a newline.
*/
type Reader struct {
	reader *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReader(r)}
}

/*
Next returns the next complete frame. At the end of the stream it returns
io.EOF, after first flushing a trailing frame that was not terminated by a
blank line.
*/
func (r *Reader) Next() (*Event, error) {
	event := &Event{}
	var eventData strings.Builder
	inEvent := false

	for {
		line, err := r.reader.ReadString('\n')

		if err != nil && line == "" {
			if err == io.EOF && inEvent {
				event.Data = []byte(eventData.String())
				return event, nil
			}

			return nil, err
		}

		line = strings.TrimRight(line, "\n\r")

		if line == "" {
			if inEvent {
				event.Data = []byte(eventData.String())
				return event, nil
			}

			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "id:"):
			event.ID = strings.TrimSpace(line[3:])
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			if eventData.Len() > 0 {
				eventData.WriteString("\n")
			}

			eventData.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			continue
		}

		inEvent = true
	}
}
