package mqtt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferFIFO(t *testing.T) {
	rb := newRingBuffer(4)

	rb.push(bufferedMsg{topic: "a", payload: []byte("1")})
	rb.push(bufferedMsg{topic: "b", payload: []byte("2")})
	assert.Equal(t, 2, rb.len())

	msgs := rb.drainAll()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].topic)
	assert.Equal(t, "b", msgs[1].topic)
	assert.Zero(t, rb.len())
	assert.Nil(t, rb.drainAll(), "drained buffer yields nothing")
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	rb := newRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.push(bufferedMsg{topic: fmt.Sprintf("t%d", i)})
	}

	msgs := rb.drainAll()
	require.Len(t, msgs, 3)
	assert.Equal(t, "t2", msgs[0].topic)
	assert.Equal(t, "t3", msgs[1].topic)
	assert.Equal(t, "t4", msgs[2].topic)
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	rb := newRingBuffer(2)

	rb.push(bufferedMsg{topic: "x"})
	rb.drainAll()

	rb.push(bufferedMsg{topic: "y"})
	rb.push(bufferedMsg{topic: "z"})

	msgs := rb.drainAll()
	require.Len(t, msgs, 2)
	assert.Equal(t, "y", msgs[0].topic)
	assert.Equal(t, "z", msgs[1].topic)
}
