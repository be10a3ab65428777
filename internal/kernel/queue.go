package kernel

import (
	"sync"

	"github.com/seastrand/vigil/internal/fault"
)

// eventQueue is a thread-safe two-lane FIFO for fault events.
//
// The normal lane carries events produced by the per-tick health poll
// and is bounded by the profile's queue capacity: enqueueing onto a
// full lane drops the event and counts it rather than blocking the
// caller. The priority lane carries out-of-band core mismatch reports;
// it is never capacity-dropped and always drains first, which is what
// gives the mismatch path its ordering guarantee over work already
// pending in the same tick.
//
// Thread-safety is provided for external enqueuing (the mismatch path
// runs on an arbitrary goroutine) while the kernel's Run loop dequeues.
// The mutex hold time is bounded: no loops over event contents inside
// the critical section.
//
// The queue uses a channel for signaling to enable context-aware
// waiting in the Run loop (prevents goroutine hangs on cancellation).
type eventQueue struct {
	mu       sync.Mutex
	normal   []fault.Event
	priority []fault.Event
	capacity int
	dropped  uint64
	closed   bool
	signal   chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty queue. capacity bounds the normal lane
// only; capacity <= 0 means unbounded (tests).
func newEventQueue(capacity int) *eventQueue {
	return &eventQueue{
		normal:   make([]fault.Event, 0, 64),
		priority: make([]fault.Event, 0, 4),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the normal lane.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed or the lane is full; a full lane
// drops the event and increments the dropped counter. Never blocks.
func (q *eventQueue) Enqueue(ev fault.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.capacity > 0 && len(q.normal) >= q.capacity {
		q.dropped++
		return false
	}

	q.normal = append(q.normal, ev)
	q.notify()
	return true
}

// EnqueuePriority adds an event to the back of the priority lane.
// Thread-safe: may be called from any goroutine, including the
// interrupt-style mismatch path. Never capacity-dropped.
// Returns false only if the queue is closed.
func (q *eventQueue) EnqueuePriority(ev fault.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.priority = append(q.priority, ev)
	q.notify()
	return true
}

// notify signals availability. Non-blocking: the buffer of 1 coalesces
// multiple signals. Callers must hold q.mu.
func (q *eventQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue attempts to dequeue without blocking, draining the
// priority lane before the normal lane.
// Returns (fault.Event{}, false) if both lanes are empty.
func (q *eventQueue) TryDequeue() (fault.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.priority) > 0 {
		return popFront(&q.priority), true
	}
	if len(q.normal) > 0 {
		return popFront(&q.normal), true
	}
	return fault.Event{}, false
}

// TryDequeuePriority attempts to dequeue from the priority lane only.
// Used by the out-of-band path to commit a mismatch reaction between
// ticks without touching normal pending work.
func (q *eventQueue) TryDequeuePriority() (fault.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.priority) > 0 {
		return popFront(&q.priority), true
	}
	return fault.Event{}, false
}

// popFront removes and returns the front event of a lane.
// CRITICAL: The vacated slot is zeroed so the payload map becomes
// collectable. Without this the underlying array retains references
// until reallocated, leaking under steady load.
func popFront(lane *[]fault.Event) fault.Event {
	ev := (*lane)[0]
	(*lane)[0] = fault.Event{}

	if len(*lane) == 1 {
		// Last element - reset to empty slice with original capacity
		*lane = (*lane)[:0]
	} else {
		*lane = (*lane)[1:]
	}
	return ev
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the total number of pending events across both lanes.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.priority) + len(q.normal)
}

// Dropped returns the number of events discarded by the capacity bound.
func (q *eventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return // Already closed
	}

	q.closed = true
	close(q.signal) // Wakes all waiters
}
