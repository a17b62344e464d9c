package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/anchor/internal/world"
)

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := NewHub(1, nil)
	sub, ok := h.Subscribe()
	require.True(t, ok)

	for tick := uint64(1); tick <= 3; tick++ {
		h.Broadcast(world.Diff{Tick: tick})
	}

	d := <-sub.Diffs()
	assert.Equal(t, uint64(1), d.Tick)
	select {
	case extra := <-sub.Diffs():
		t.Fatalf("unexpected buffered diff for tick %d", extra.Tick)
	default:
	}

	h.Unsubscribe(sub)
	h.Wait()
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub(0, nil)
	a, _ := h.Subscribe()
	b, _ := h.Subscribe()
	assert.Equal(t, 2, h.Len())

	h.Close()
	h.Close()

	_, open := <-a.Diffs()
	assert.False(t, open)
	_, open = <-b.Diffs()
	assert.False(t, open)
	assert.Zero(t, h.Len())

	_, ok := h.Subscribe()
	assert.False(t, ok, "closed hub refuses subscribers")

	h.Unsubscribe(a)
	h.Unsubscribe(b)
	h.Unsubscribe(b)
	h.Wait()
}
