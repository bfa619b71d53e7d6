package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemother/internal/apperrors"
)

func TestParseGenerationType(t *testing.T) {
	got, err := ParseGenerationType(" Vue_Project ")
	require.NoError(t, err)
	assert.Equal(t, GenerationVueProject, got)

	_, err = ParseGenerationType("react")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedType)
}

func TestGenerationTypeLayout(t *testing.T) {
	assert.Equal(t, "html_7", GenerationHTML.DirName(7))
	assert.Equal(t, "vue_project_12", GenerationVueProject.DirName(12))
	assert.True(t, GenerationVueProject.UsesTools())
	assert.False(t, GenerationMultiFile.UsesTools())
	assert.Equal(t, 20, GenerationMultiFile.HistoryWindow())
	assert.Equal(t, 50, GenerationVueProject.HistoryWindow())
	assert.Equal(t, 100, GenerationVueProject.MemoryCapacity())
}

func TestToolTurnsDecode(t *testing.T) {
	req, err := NewToolRequestedTurn(ToolCallRequested{ID: "call_1", Name: "write_file", Arguments: `{"relativeFilePath":"a.vue"}`, Text: "Writing"})
	require.NoError(t, err)
	assert.Equal(t, ScopeMemory, req.Scope)

	decoded, err := req.ToolRequested()
	require.NoError(t, err)
	assert.Equal(t, "call_1", decoded.ID)
	assert.Equal(t, "Writing", decoded.Text)

	_, err = req.ToolCompleted()
	assert.Error(t, err)
}
