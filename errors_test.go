package pytestx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError(t *testing.T) {
	cause := errors.New("pytest not found")
	err := NewRuntimeError(cause)

	assert.Equal(t, "runtime error: pytest not found", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, IsRuntimeError(fmt.Errorf("failed to start: %w", err)))
	assert.True(t, IsRuntimeError(errors.Join(errors.New("other"), err)))

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsRuntimeError(cause))
}
