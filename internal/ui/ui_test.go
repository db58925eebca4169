package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bz888/gab/internal/coordinator"
)

func TestCompletedPushDoesNotSuppressTailTokens(t *testing.T) {
	id := coordinator.RequestID("m1")
	t.Cleanup(func() { clearAbandoned(id) })

	c := coordinator.New(nil, nil)
	require.NoError(t, c.Start(id))
	c.HandshakeComplete(id, "t1")

	// The gateway announces completion after flushing the last tokens; the
	// push frame can overtake the stream drain and clear the active slot
	// while tail tokens are still in flight.
	c.OnCompletionFinished(id)

	_, ok := c.Active()
	assert.False(t, ok)
	assert.True(t, shouldRenderToken(id), "tail tokens of a finished reply belong in the transcript")
}

func TestAbandonedRequestTokensAreDropped(t *testing.T) {
	id := coordinator.RequestID("m1")
	t.Cleanup(func() { clearAbandoned(id) })

	markAbandoned(id)
	assert.False(t, shouldRenderToken(id))

	clearAbandoned(id)
	assert.True(t, shouldRenderToken(id))
}
