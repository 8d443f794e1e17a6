package coord

// Queue collects mutations to run after the sensing phase of the current
// tick, so every sensor sees the same pre-mutation state.
type Queue struct {
	pending []func()
}

func NewQueue() *Queue { return &Queue{} }

// Defer schedules fn for the next Flush. Nil is ignored.
func (q *Queue) Defer(fn func()) {
	if fn == nil {
		return
	}
	q.pending = append(q.pending, fn)
}

func (q *Queue) Len() int { return len(q.pending) }

// Flush runs the pending callbacks in arrival order and clears them.
// Callbacks deferred while flushing run on the following Flush.
func (q *Queue) Flush() int {
	batch := q.pending
	q.pending = nil
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}
