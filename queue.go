package routecraft

import "sync"

// Message is the raw (body, headers) pair a Source hands to a route's
// internal queue, before the consumer wraps it into an Exchange.
type Message struct {
	Body    any
	Headers Headers
}

// QueueHandler receives drained messages in FIFO order.
type QueueHandler func(Message)

// ProcessingQueue is the per-route, single-producer-safe, single-consumer
// buffer between a Source and a Consumer. Messages enqueued before a
// handler is set are never lost: they are delivered, oldest first, the
// moment a handler appears. Modeled on the scheduler's single-lock
// buffer discipline — one mutex, no read/write split, because every
// operation mutates either the buffer or the handler.
type ProcessingQueue struct {
	mu      sync.Mutex
	buffer  []Message
	handler QueueHandler
}

// NewProcessingQueue returns an empty queue with no handler attached.
func NewProcessingQueue() *ProcessingQueue {
	return &ProcessingQueue{}
}

// Enqueue appends m to the buffer. If a handler is already set, buffered
// messages (including m) are delivered in FIFO order immediately. Enqueue
// never fails and never blocks on the handler beyond its own runtime.
func (q *ProcessingQueue) Enqueue(m Message) {
	q.mu.Lock()
	q.buffer = append(q.buffer, m)
	h := q.handler
	q.mu.Unlock()

	if h != nil {
		q.flush()
	}
}

// SetHandler atomically replaces the handler and flushes any buffered
// messages in arrival order before returning control to later enqueues.
// At most one handler is active at a time; setting a new one replaces
// the old.
func (q *ProcessingQueue) SetHandler(h QueueHandler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()

	if h != nil {
		q.flush()
	}
}

// flush drains the buffer, oldest first, delivering each entry through
// whichever handler is current when it is dequeued. If the handler is
// cleared mid-flush, flush stops and leaves any remaining entries for
// the next SetHandler/Enqueue to pick up.
func (q *ProcessingQueue) flush() {
	for {
		q.mu.Lock()
		if len(q.buffer) == 0 || q.handler == nil {
			q.mu.Unlock()
			return
		}
		m := q.buffer[0]
		q.buffer = q.buffer[1:]
		h := q.handler
		q.mu.Unlock()

		h(m)
	}
}

// Clear drops all buffered messages and detaches the handler.
func (q *ProcessingQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffer = nil
	q.handler = nil
}
