package memory

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	w.Add(schema.UserMessage("1"), schema.AssistantMessage("2", nil), schema.UserMessage("3"), schema.AssistantMessage("4", nil))

	msgs := w.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "2", msgs[0].Content)
	assert.Equal(t, "4", msgs[2].Content)
}

func TestWindowDropsOrphanedToolResults(t *testing.T) {
	w := NewWindow(3)
	call := schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Type: "function", Function: schema.FunctionCall{Name: "read_file", Arguments: "{}"}}})
	w.Add(
		schema.UserMessage("hi"),
		call,
		&schema.Message{Role: schema.Tool, ToolCallID: "c1", Content: "ok"},
	)
	require.Equal(t, 3, w.Len())

	// Pushing one more message evicts the user turn, then the call; the result
	// would now lead the window without its call, so it goes too.
	w.Add(schema.AssistantMessage("done", nil), schema.UserMessage("next"))
	msgs := w.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "done", msgs[0].Content)
}

func TestWindowClear(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, DefaultMaxMessages, w.Max())
	w.Add(schema.UserMessage("x"), nil)
	assert.Equal(t, 1, w.Len())
	w.Clear()
	assert.Zero(t, w.Len())
}
