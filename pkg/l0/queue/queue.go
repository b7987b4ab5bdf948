// Package queue provides the fixed-capacity byte FIFO shared between a
// producer and a transmit-complete interrupt handler.
package queue

import "fmt"

// DefaultCapacity is the capacity used by each output channel unless configured.
const DefaultCapacity = 100

// MaxCapacity is the largest capacity representable by the uint8 occupancy count.
// count is the only source of truth for full/empty, so C must stay below 256.
const MaxCapacity = 255

// Queue is a circular byte buffer with FIFO semantics.
// It is not safe for concurrent use; callers hold the channel critical section.
type Queue struct {
	storage []byte
	head    uint8
	count   uint8
}

// New creates a Queue with the given capacity.
// It panics if capacity is outside (0, MaxCapacity].
func New(capacity int) *Queue {
	if capacity <= 0 || capacity > MaxCapacity {
		panic(fmt.Sprintf("queue: capacity %d out of range (1..%d)", capacity, MaxCapacity))
	}
	return &Queue{storage: make([]byte, capacity)}
}

// Cap returns the capacity.
func (q *Queue) Cap() int {
	return len(q.storage)
}

// Size returns the number of queued bytes.
func (q *Queue) Size() int {
	return int(q.count)
}

// Full reports whether Push would fail.
func (q *Queue) Full() bool {
	return int(q.count) == len(q.storage)
}

// Push appends b. It returns false and leaves the queue untouched when full.
func (q *Queue) Push(b byte) bool {
	if q.Full() {
		return false
	}
	q.storage[(int(q.head)+int(q.count))%len(q.storage)] = b
	q.count++
	return true
}

// Pop removes and returns the oldest byte.
func (q *Queue) Pop() (byte, bool) {
	if q.count == 0 {
		return 0, false
	}
	b := q.storage[q.head]
	q.head = uint8((int(q.head) + 1) % len(q.storage))
	q.count--
	return b, true
}

// Reset empties the queue, as a system reset would.
func (q *Queue) Reset() {
	q.head, q.count = 0, 0
}
