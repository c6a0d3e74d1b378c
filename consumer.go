package routecraft

import (
	"sync"
	"time"
)

// defaultBatchSize and defaultBatchWindow are the BatchConsumer defaults
// when an option is left zero.
const (
	defaultBatchSize   = 1000
	defaultBatchWindow = 10 * time.Second
)

// ExchangeBuilder constructs the initial Exchange for one drained
// Message; Consumer implementations never build exchanges themselves.
type ExchangeBuilder func(Message) *Exchange

// ExchangeHandler is invoked once per initial exchange a Consumer
// produces; it is the pipeline driver's entry point, supplied by the
// Route at registration time.
type ExchangeHandler func(*Exchange)

// Consumer bridges a route's ProcessingQueue to the pipeline driver.
// register is called exactly once per route start.
type Consumer interface {
	register(queue *ProcessingQueue, build ExchangeBuilder, handle ExchangeHandler)
	// stop releases any timers or goroutines the consumer owns. Safe to
	// call even if register was never called.
	stop()
}

// SimpleConsumer delivers every message as its own exchange, one at a
// time, in the order the queue delivers it.
type SimpleConsumer struct{}

// NewSimpleConsumer returns a SimpleConsumer.
func NewSimpleConsumer() *SimpleConsumer { return &SimpleConsumer{} }

func (c *SimpleConsumer) register(queue *ProcessingQueue, build ExchangeBuilder, handle ExchangeHandler) {
	queue.SetHandler(func(m Message) {
		handle(build(m))
	})
}

func (c *SimpleConsumer) stop() {}

// Merge combines a window of buffered messages into the single merged
// message a BatchConsumer flush delivers. The default concatenates
// bodies into an ordered slice and union-merges headers, last write
// wins.
type Merge func([]Message) Message

// DefaultMerge is the BatchConsumer merge used when BatchOptions.Merge
// is nil: bodies become an ordered []any, headers are unioned with
// later messages overriding earlier ones for the same key.
func DefaultMerge(batch []Message) Message {
	bodies := make([]any, len(batch))
	headers := make(Headers)
	for i, m := range batch {
		bodies[i] = m.Body
		for k, v := range m.Headers {
			headers[k] = v
		}
	}
	return Message{Body: bodies, Headers: headers}
}

// BatchOptions configures a BatchConsumer. A zero Size or Time falls
// back to the defaults (1000 messages / 10s window); a nil Merge falls
// back to DefaultMerge.
type BatchOptions struct {
	Size  int
	Time  time.Duration
	Merge Merge
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.Size <= 0 {
		o.Size = defaultBatchSize
	}
	if o.Time <= 0 {
		o.Time = defaultBatchWindow
	}
	if o.Merge == nil {
		o.Merge = DefaultMerge
	}
	return o
}

// BatchConsumer accumulates messages and flushes them as one merged
// exchange when the buffer reaches Size or the time window elapses,
// whichever comes first. Timer handling follows the scheduler's
// mutex-guarded time.AfterFunc discipline: a single lock, a timer
// tracked by reference so it can be stopped and replaced, and the timer
// callback itself taking the lock before touching shared state.
type BatchConsumer struct {
	opts BatchOptions

	mu      sync.Mutex
	buffer  []Message
	timer   *time.Timer
	build   ExchangeBuilder
	handle  ExchangeHandler
	stopped bool
}

// NewBatchConsumer returns a BatchConsumer configured with opts
// (defaults applied for any zero field).
func NewBatchConsumer(opts BatchOptions) *BatchConsumer {
	return &BatchConsumer{opts: opts.withDefaults()}
}

func (c *BatchConsumer) register(queue *ProcessingQueue, build ExchangeBuilder, handle ExchangeHandler) {
	c.mu.Lock()
	c.build = build
	c.handle = handle
	c.mu.Unlock()

	queue.SetHandler(func(m Message) {
		c.enqueue(m)
	})
}

func (c *BatchConsumer) enqueue(m Message) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	wasEmpty := len(c.buffer) == 0
	c.buffer = append(c.buffer, m)

	if wasEmpty {
		c.timer = time.AfterFunc(c.opts.Time, c.onTimerFire)
	}

	flush := len(c.buffer) >= c.opts.Size
	c.mu.Unlock()

	if flush {
		c.flush()
	}
}

func (c *BatchConsumer) onTimerFire() {
	c.flush()
}

// flush drains whatever is currently buffered (possibly nothing, if a
// size-triggered flush and the timer race) and, if non-empty, merges
// and dispatches it. A panic in merge, build or the handler is
// recovered and the batch is discarded, not retried; the consumer holds
// no logger, so the failure is not logged.
func (c *BatchConsumer) flush() {
	c.mu.Lock()
	if c.stopped || len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	build, handle := c.build, c.handle
	c.mu.Unlock()

	if build == nil || handle == nil {
		return
	}

	defer func() { _ = recover() }()
	merged := c.opts.Merge(batch)
	handle(build(merged))
}

func (c *BatchConsumer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.buffer = nil
}
