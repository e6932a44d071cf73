// Package outbox buffers outbound messages submitted while the session is not ready.
package outbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingMessage is a send that was accepted for later delivery.
type PendingMessage struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"` // raw phone string as supplied by the caller
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

// Queue is an in-memory FIFO of pending messages. No deduplication is done;
// submitting the same message twice queues it twice.
type Queue struct {
	mu    sync.Mutex
	items []PendingMessage
	now   func() time.Time
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{now: time.Now}
}

// Enqueue appends a message and returns it along with its 1-based position.
func (q *Queue) Enqueue(recipient, body string) (PendingMessage, int) {
	msg := PendingMessage{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Body:       body,
		EnqueuedAt: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, msg)
	return msg, len(q.items)
}

// Requeue puts a message that failed delivery back at the tail, keeping its
// ID and original enqueue time.
func (q *Queue) Requeue(msg PendingMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, msg)
}

// TakeAll removes and returns every queued message in insertion order.
func (q *Queue) TakeAll() []PendingMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Oldest returns the enqueue time of the head message, or the zero time if empty.
func (q *Queue) Oldest() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return time.Time{}
	}
	return q.items[0].EnqueuedAt
}
