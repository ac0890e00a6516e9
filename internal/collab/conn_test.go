package collab

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSeversSlowConsumer(t *testing.T) {
	// No writer goroutine drains the queue here, standing in for a peer
	// that stopped reading.
	c := &wsConn{
		open:     true,
		outbound: make(chan string, outboundQueueSize),
		done:     make(chan struct{}),
	}

	for i := 0; i < outboundQueueSize; i++ {
		require.NoError(t, c.Send("frame"))
	}

	err := c.Send("one too many")
	require.ErrorIs(t, err, errSlowConsumer)
	assert.False(t, c.IsOpen())

	// A severed connection reports closed on later sends.
	assert.ErrorIs(t, c.Send("late"), websocket.ErrCloseSent)
}
