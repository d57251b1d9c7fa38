package cache

import "fmt"

// Queue buffers raw payloads during a fetch run and commits them as one unit
// once the run has produced parseable output. A nil store turns every
// operation into a no-op, which is how cache-less runs behave.
type Queue struct {
	store   Store
	pending []string
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// Purge drops payloads left pending by an earlier failed run. Runs call it
// first so a restart always starts from a clean buffer.
func (q *Queue) Purge() {
	q.pending = q.pending[:0]
}

// Push appends a payload to the pending buffer. Nothing reaches the store
// until Flush.
func (q *Queue) Push(payload string) {
	if q.store == nil {
		return
	}
	q.pending = append(q.pending, payload)
}

// Flush commits everything pending as a single unit and empties the buffer.
// This is the only path that writes the store, so a run that fails before
// Flush leaves the committed unit exactly as it was.
func (q *Queue) Flush() error {
	if q.store == nil || len(q.pending) == 0 {
		return nil
	}
	if err := q.store.Commit(q.pending...); err != nil {
		return fmt.Errorf("flush pending payloads: %w", err)
	}
	q.pending = q.pending[:0]
	return nil
}

// Pending reports how many payloads wait for Flush.
func (q *Queue) Pending() int {
	return len(q.pending)
}
