package simulator

// ProcessQueue is a FIFO of process handles (indices into the simulator's
// records table). It does not own the records it refers to.
type ProcessQueue struct {
	name    string
	handles []int
}

// NewProcessQueue creates a new, empty queue
func NewProcessQueue(name string) *ProcessQueue {
	return &ProcessQueue{
		name:    name,
		handles: make([]int, 0),
	}
}

// Name returns the queue name ("ready" or "io")
func (q *ProcessQueue) Name() string {
	return q.name
}

// Enqueue appends a handle at the tail
func (q *ProcessQueue) Enqueue(h int) {
	q.handles = append(q.handles, h)
}

// Dequeue removes and returns the head. ok is false when the queue is empty.
func (q *ProcessQueue) Dequeue() (h int, ok bool) {
	if q.IsEmpty() {
		return -1, false
	}
	h = q.handles[0]
	copy(q.handles, q.handles[1:])
	q.handles = q.handles[:len(q.handles)-1]
	return h, true
}

// Peek returns the head without removing it
func (q *ProcessQueue) Peek() (h int, ok bool) {
	if q.IsEmpty() {
		return -1, false
	}
	return q.handles[0], true
}

// PopTail removes and returns the tail
func (q *ProcessQueue) PopTail() (h int, ok bool) {
	if q.IsEmpty() {
		return -1, false
	}
	n := len(q.handles)
	h = q.handles[n-1]
	q.handles = q.handles[:n-1]
	return h, true
}

// RemoveAt removes and returns the handle at position i (0 = head)
func (q *ProcessQueue) RemoveAt(i int) (h int, ok bool) {
	if i < 0 || i >= len(q.handles) {
		return -1, false
	}
	h = q.handles[i]
	q.handles = append(q.handles[:i], q.handles[i+1:]...)
	return h, true
}

// Sweep visits every handle exactly once, removes those for which match
// returns true and returns them in queue order. The relative order of the
// remaining handles is preserved.
func (q *ProcessQueue) Sweep(match func(h int) bool) []int {
	removed := make([]int, 0)
	kept := q.handles[:0]
	for _, h := range q.handles {
		if match(h) {
			removed = append(removed, h)
		} else {
			kept = append(kept, h)
		}
	}
	q.handles = kept
	return removed
}

// Contains returns true if h is in the queue
func (q *ProcessQueue) Contains(h int) bool {
	for _, x := range q.handles {
		if x == h {
			return true
		}
	}
	return false
}

// Handles returns the queued handles, head first.
// This returns a copy to prevent external modification.
func (q *ProcessQueue) Handles() []int {
	handles := make([]int, len(q.handles))
	copy(handles, q.handles)
	return handles
}

// Len returns the number of queued handles
func (q *ProcessQueue) Len() int {
	return len(q.handles)
}

// IsEmpty returns true if the queue is empty
func (q *ProcessQueue) IsEmpty() bool {
	return len(q.handles) == 0
}

// Clear removes all handles from the queue
func (q *ProcessQueue) Clear() {
	q.handles = make([]int, 0)
}
