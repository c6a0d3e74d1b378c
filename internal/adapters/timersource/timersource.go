// Package timersource emits an empty-bodied message on a fixed
// interval, optionally bounded by a repeat count.
package timersource

import (
	"context"
	"sync"
	"time"

	"github.com/routecraftjs/routecraft"
)

// Options configures a timer source.
type Options struct {
	// Interval between ticks. Required; New panics if zero.
	Interval time.Duration
	// Repeat bounds the number of ticks emitted before the source
	// completes on its own. Zero means unbounded (runs until the
	// route's cancellation token fires).
	Repeat int
}

// timerSource holds the mutex-guarded timer reference, following the
// scheduler's time.AfterFunc discipline: one lock, the timer tracked by
// reference so it can be stopped on cancellation, and the fire callback
// itself taking the lock before touching shared state.
type timerSource struct {
	opts Options

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New returns a routecraft.Source that ticks every opts.Interval,
// emitting a nil body with a "routecraft.tick" header set to the tick
// count (starting at 1). The source ends on its own once opts.Repeat
// ticks have fired (if non-zero), or when the route's cancellation
// token is aborted, whichever comes first.
func New(opts Options) routecraft.Source {
	if opts.Interval <= 0 {
		panic("timersource: Interval must be positive")
	}
	return routecraft.SourceFunc(func(ctx context.Context, emit routecraft.Emit) error {
		s := &timerSource{opts: opts}
		return s.run(ctx, emit)
	})
}

func (s *timerSource) run(ctx context.Context, emit routecraft.Emit) error {
	done := make(chan struct{})
	count := 0

	var fire func()
	fire = func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		count++
		n := count
		if s.opts.Repeat == 0 || n < s.opts.Repeat {
			s.timer = time.AfterFunc(s.opts.Interval, fire)
		}
		s.mu.Unlock()

		emit(nil, routecraft.Headers{"routecraft.tick": n})

		if s.opts.Repeat != 0 && n >= s.opts.Repeat {
			close(done)
		}
	}

	s.mu.Lock()
	s.timer = time.AfterFunc(s.opts.Interval, fire)
	s.mu.Unlock()

	defer s.stop()

	select {
	case <-ctx.Done():
		return routecraftIgnoreCancellation(ctx.Err())
	case <-done:
		return nil
	}
}

func (s *timerSource) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

func routecraftIgnoreCancellation(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}
