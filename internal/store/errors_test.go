package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityErrorsWrapNotFound(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrTaskNotFound, ErrSubtaskNotFound, ErrJobNotFound} {
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, IsNotFoundError(err))
	}

	assert.False(t, IsNotFoundError(ErrDuplicate))
	assert.False(t, IsNotFoundError(nil))
}

func TestIsNotFoundErrorSeesThroughWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("loading task: %w", ErrTaskNotFound)
	assert.True(t, IsNotFoundError(wrapped))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	inner := errors.New("connection refused")
	err := NewStoreError("task", "create", "insert failed", inner)

	assert.Contains(t, err.Error(), "task")
	assert.Contains(t, err.Error(), "insert failed")
	assert.ErrorIs(t, err, inner)
}
