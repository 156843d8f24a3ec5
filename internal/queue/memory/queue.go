// Package memory provides the in-memory queues the fetch pipeline runs on: a
// cursor over the planned ids and an unbounded mailbox for results.
package memory

import (
	"sync"
	"sync/atomic"
)

// IDQueue hands out planned ids in order without copying them. Consumers take
// ids without blocking so a worker can retire as soon as the queue is empty.
type IDQueue struct {
	ids    []int64
	next   atomic.Int64
	closed atomic.Bool
}

// Load builds a queue over ids. The slice must not be modified while the
// queue is in use.
func Load(ids []int64) *IDQueue {
	return &IDQueue{ids: ids}
}

// TryDequeue pops the next id without blocking. It reports false when the
// queue is empty or closed.
func (q *IDQueue) TryDequeue() (int64, bool) {
	if q.closed.Load() {
		return 0, false
	}
	i := q.next.Add(1) - 1
	if i >= int64(len(q.ids)) {
		return 0, false
	}
	return q.ids[i], true
}

// Len returns the number of ids still pending.
func (q *IDQueue) Len() int {
	return max(0, len(q.ids)-int(q.next.Load()))
}

// Close stops admission; pending ids are abandoned.
func (q *IDQueue) Close() {
	q.closed.Store(true)
}

// Mailbox is an unbounded FIFO. Put never blocks; storage grows with the
// backlog and shrinks as it drains.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

// Put appends v.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Take removes the oldest value, waiting until one is available.
func (m *Mailbox[T]) Take() T {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.items[0]
			var zero T
			m.items[0] = zero
			m.items = m.items[1:]
			if len(m.items) == 0 {
				m.items = nil
			}
			m.mu.Unlock()
			return v
		}
		m.mu.Unlock()
		<-m.notify
	}
}

// Len returns the number of values waiting.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
