package stream

// EventKind enumerates what the generation backend can report.
type EventKind int

const (
	TextDelta EventKind = iota + 1
	ToolAnnounced
	ToolCompleted
)

func (k EventKind) String() string {
	switch k {
	case TextDelta:
		return "text_delta"
	case ToolAnnounced:
		return "tool_announced"
	case ToolCompleted:
		return "tool_completed"
	default:
		return "unknown"
	}
}

// Event is one item of the backend stream. Text is set for TextDelta; the tool fields
// for the two tool kinds. Announcements may repeat for the same ToolID while arguments
// are still streaming in.
type Event struct {
	Kind      EventKind
	Text      string
	ToolID    string
	ToolName  string
	Arguments string
	Result    string
}

func NewTextDelta(text string) Event {
	return Event{Kind: TextDelta, Text: text}
}

func NewToolAnnounced(id, name, arguments string) Event {
	return Event{Kind: ToolAnnounced, ToolID: id, ToolName: name, Arguments: arguments}
}

func NewToolCompleted(id, name, arguments, result string) Event {
	return Event{Kind: ToolCompleted, ToolID: id, ToolName: name, Arguments: arguments, Result: result}
}

// ChunkType tags a display chunk.
type ChunkType string

const (
	ChunkText  ChunkType = "text"
	ChunkError ChunkType = "error"
	ChunkDone  ChunkType = "done"
)

// Chunk is one item of the display stream. Every display stream ends with a ChunkDone.
type Chunk struct {
	Type ChunkType `json:"type"`
	Data string    `json:"d,omitempty"`
}

// DoneMarker terminates a display stream.
var DoneMarker = Chunk{Type: ChunkDone}
