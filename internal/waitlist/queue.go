package waitlist

import (
	"slices"
	"sync"
)

// one row of the queue snapshot broadcast to the operator; JoinedAt is
// epoch milliseconds to match the client
type Entry struct {
	Handle   string `json:"socketId"`
	Mood     string `json:"mood,omitempty"`
	Mode     string `json:"mode,omitempty"`
	JoinedAt int64  `json:"joinedAt"`
}

// describes a waiting guest for snapshot building; ok=false drops the
// handle from the queue
type InfoFunc func(handle string) (Entry, bool)

// Queue is the FIFO waiting list of guest connection handles. Arrival order
// is insertion order; handles are unique; handles whose participant record
// has vanished are pruned lazily before every snapshot.
type Queue struct {
	mu    sync.Mutex
	order []string
}

// returns an empty queue
func New() *Queue {
	return &Queue{}
}

// appends the handle if absent; re-registering never changes position
func (q *Queue) Enqueue(handle string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if slices.Contains(q.order, handle) {
		return
	}

	q.order = append(q.order, handle)
}

// removes the handle if present
func (q *Queue) Remove(handle string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order = slices.DeleteFunc(q.order, func(h string) bool {
		return h == handle
	})
}

// drops every handle for which the predicate is false
func (q *Queue) Prune(exists func(handle string) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order = slices.DeleteFunc(q.order, func(h string) bool {
		return !exists(h)
	})
}

// returns the 1-based queue position, or 0 when absent
func (q *Queue) PositionOf(handle string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Index(q.order, handle) + 1
}

// returns the number of waiting handles
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.order)
}

// returns the ordered queue entries, pruning handles the info function no
// longer knows about
func (q *Queue) Snapshot(info InfoFunc) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]Entry, 0, len(q.order))
	kept := q.order[:0]

	for _, handle := range q.order {
		entry, ok := info(handle)
		if !ok {
			continue
		}

		kept = append(kept, handle)
		entries = append(entries, entry)
	}

	q.order = kept

	return entries
}
