// Implements the CommandQueue, the single ingress point between concurrent
// command producers and the single-writer orchestrator.

package sim

import "sync"

// CommandQueue is a bounded FIFO buffer. Enqueue may be called from any
// number of goroutines concurrently with tick execution; Drain is called
// exclusively by the orchestrator at tick start. Commands enqueued while a
// drain is in progress land in the next tick's batch, never the current one
// -- this ordering boundary is what makes ticks replayable.
type CommandQueue struct {
	mu       sync.Mutex
	queue    []Command
	capacity int
}

// NewCommandQueue creates a queue with the given capacity bound.
func NewCommandQueue(capacity int) *CommandQueue {
	return &CommandQueue{
		queue:    make([]Command, 0, capacity),
		capacity: capacity,
	}
}

// Enqueue appends a command in submission order. It returns QueueFullError
// when the capacity bound is reached; the producer must retry or drop.
func (q *CommandQueue) Enqueue(cmd Command) error {
	if cmd == nil {
		return validationErrorf("command", "must not be nil")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) >= q.capacity {
		return &QueueFullError{Capacity: q.capacity}
	}
	q.queue = append(q.queue, cmd)
	return nil
}

// Drain atomically removes and returns all queued commands in FIFO order.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.queue
	q.queue = make([]Command, 0, q.capacity)
	return drained
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
