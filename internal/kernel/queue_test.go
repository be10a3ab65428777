package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func event(kind fault.Kind, channel int, tick uint64) fault.Event {
	return fault.Event{Kind: kind, Channel: channel, Tick: tick}
}

func TestEventQueue_FIFOWithinLane(t *testing.T) {
	q := newEventQueue(8)

	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 1, 1)))
	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 2, 1)))
	require.True(t, q.Enqueue(event(fault.KindSensorImplausible, 3, 2)))

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, ev.Channel)

	ev, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 2, ev.Channel)

	ev, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, fault.KindSensorImplausible, ev.Kind)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_PriorityLaneDrainsFirst(t *testing.T) {
	q := newEventQueue(8)

	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 1, 1)))
	require.True(t, q.EnqueuePriority(event(fault.KindCoreMismatch, 0, 1)))

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, fault.KindCoreMismatch, ev.Kind)

	ev, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, fault.KindCommsTimeout, ev.Kind)
}

func TestEventQueue_CapacityDropsNormalLane(t *testing.T) {
	q := newEventQueue(2)

	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 1, 1)))
	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 2, 1)))
	assert.False(t, q.Enqueue(event(fault.KindCommsTimeout, 3, 1)))

	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())

	// The priority lane is exempt from the bound.
	require.True(t, q.EnqueuePriority(event(fault.KindCoreMismatch, 0, 1)))
	require.True(t, q.EnqueuePriority(event(fault.KindCoreMismatch, 0, 2)))
	require.True(t, q.EnqueuePriority(event(fault.KindCoreMismatch, 0, 3)))
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 5, q.Len())
}

func TestEventQueue_TryDequeuePriority_IgnoresNormalLane(t *testing.T) {
	q := newEventQueue(8)

	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 1, 1)))
	_, ok := q.TryDequeuePriority()
	assert.False(t, ok)

	require.True(t, q.EnqueuePriority(event(fault.KindCoreMismatch, 0, 1)))
	ev, ok := q.TryDequeuePriority()
	require.True(t, ok)
	assert.Equal(t, fault.KindCoreMismatch, ev.Kind)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_Wait_SignalsAvailability(t *testing.T) {
	q := newEventQueue(8)

	select {
	case <-q.Wait():
		t.Fatal("signal fired on empty queue")
	default:
	}

	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 1, 1)))

	select {
	case <-q.Wait():
	default:
		t.Fatal("signal missing after enqueue")
	}
}

func TestEventQueue_Close_RejectsEnqueues(t *testing.T) {
	q := newEventQueue(8)
	require.True(t, q.Enqueue(event(fault.KindCommsTimeout, 1, 1)))

	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(event(fault.KindCommsTimeout, 2, 1)))
	assert.False(t, q.EnqueuePriority(event(fault.KindCoreMismatch, 0, 1)))

	// Pending events remain dequeueable; waiters are released.
	_, ok := q.TryDequeue()
	assert.True(t, ok)
	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait channel not released after Close")
	}
}

func TestEventQueue_UnboundedWhenCapacityZero(t *testing.T) {
	q := newEventQueue(0)
	for i := 0; i < 200; i++ {
		require.True(t, q.Enqueue(event(fault.KindCommsTimeout, i, 1)))
	}
	assert.Equal(t, uint64(0), q.Dropped())
	assert.Equal(t, 200, q.Len())
}
