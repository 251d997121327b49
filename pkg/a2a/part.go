package a2a

type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
)

/*
Part is a single piece of message content. Only text and structured data
parts are produced by this agent.
*/
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}
