package engine

import (
	"sync"
	"time"
)

const DefaultQueueCapacity = 1024

// Queue is a bounded notification queue with category filtering. Posting
// never blocks; when full the oldest notification is dropped.
type Queue struct {
	mu       sync.Mutex
	mask     Category
	items    []Notification
	capacity int
	dropped  int
	signal   chan struct{}
}

func NewQueue(mask Category, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		mask:     mask,
		items:    make([]Notification, 0),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Post enqueues n and reports whether it passed the mask.
func (q *Queue) Post(n Notification) bool {
	if n.Type.Category()&q.mask == 0 {
		return false
	}
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, n)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

func (q *Queue) Wait(timeout time.Duration) bool {
	if q.pending() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.signal:
	case <-timer.C:
	}
	return q.pending()
}

// Pop removes and returns everything queued, oldest first.
func (q *Queue) Pop() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = make([]Notification, 0)
	return items
}

// Dropped counts notifications lost to overflow.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
