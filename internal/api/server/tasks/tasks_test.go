package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelAbortsRegisteredTask(t *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	registry.Register("t1", "m1", cancel)

	task, ok := registry.Get("t1")
	assert.True(t, ok)
	assert.Equal(t, "m1", task.RequestID)

	assert.True(t, registry.Cancel("t1"))
	assert.Error(t, ctx.Err(), "upstream context must be canceled")
	assert.Equal(t, 0, registry.Count())
}

func TestCancelUnknownTaskReturnsFalse(t *testing.T) {
	registry := NewRegistry()
	assert.False(t, registry.Cancel("nope"))
}

func TestCancelAfterDoneIsStale(t *testing.T) {
	registry := NewRegistry()
	canceled := false
	registry.Register("t1", "m1", func() { canceled = true })

	registry.Done("t1")

	assert.False(t, registry.Cancel("t1"))
	assert.False(t, canceled, "a finished task must not be canceled")
}

func TestCancelTwiceCancelsOnce(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	registry.Register("t1", "m1", func() { calls++ })

	assert.True(t, registry.Cancel("t1"))
	assert.False(t, registry.Cancel("t1"))
	assert.Equal(t, 1, calls)
}
