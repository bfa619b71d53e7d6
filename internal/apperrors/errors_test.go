package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutIsBackend(t *testing.T) {
	err := fmt.Errorf("code_generator: %w", ErrTimeout)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, ErrBackend)
	assert.NotErrorIs(t, err, ErrConfiguration)
}

func TestConfigurationFamily(t *testing.T) {
	assert.ErrorIs(t, ErrUnsupportedType, ErrConfiguration)
	assert.ErrorIs(t, ErrUnknownTool, ErrConfiguration)
}

func TestWrappersKeepCause(t *testing.T) {
	err := Persistence("append batch", context.Canceled)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, context.Canceled)

	err = Backend("stream", errors.New("boom"))
	assert.ErrorIs(t, err, ErrBackend)
	assert.Contains(t, err.Error(), "boom")

	assert.EqualError(t, Validation("appID is required"), "validation error: appID is required")
}
