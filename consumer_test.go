package routecraft

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestSimpleConsumerDeliversEachMessageAlone(t *testing.T) {
	q := NewProcessingQueue()
	c := NewSimpleConsumer()

	var got []any
	build := func(m Message) *Exchange { return &Exchange{Body: m.Body} }
	handle := func(ex *Exchange) { got = append(got, ex.Body) }
	c.register(q, build, handle)

	q.Enqueue(Message{Body: "a"})
	q.Enqueue(Message{Body: "b"})

	want := []any{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBatchConsumerFlushesOnSize(t *testing.T) {
	q := NewProcessingQueue()
	c := NewBatchConsumer(BatchOptions{Size: 3, Time: time.Hour})

	var mu sync.Mutex
	var flushes [][]any
	build := func(m Message) *Exchange { return &Exchange{Body: m.Body} }
	handle := func(ex *Exchange) {
		mu.Lock()
		flushes = append(flushes, ex.Body.([]any))
		mu.Unlock()
	}
	c.register(q, build, handle)

	for i := 1; i <= 5; i++ {
		q.Enqueue(Message{Body: i})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flushes) != 1 {
		t.Fatalf("expected exactly 1 size-triggered flush before the window elapses, got %d: %v", len(flushes), flushes)
	}
	want := []any{1, 2, 3}
	if !reflect.DeepEqual(flushes[0], want) {
		t.Fatalf("flushes[0] = %v, want %v", flushes[0], want)
	}
}

func TestBatchConsumerFlushesOnTimeWindow(t *testing.T) {
	q := NewProcessingQueue()
	c := NewBatchConsumer(BatchOptions{Size: 100, Time: 30 * time.Millisecond})

	done := make(chan []any, 1)
	build := func(m Message) *Exchange { return &Exchange{Body: m.Body} }
	handle := func(ex *Exchange) { done <- ex.Body.([]any) }
	c.register(q, build, handle)

	q.Enqueue(Message{Body: "x"})
	q.Enqueue(Message{Body: "y"})

	select {
	case got := <-done:
		want := []any{"x", "y"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the time-window flush")
	}
}

func TestBatchConsumerTwoWindowsProduceTwoFlushes(t *testing.T) {
	q := NewProcessingQueue()
	c := NewBatchConsumer(BatchOptions{Size: 3, Time: 100 * time.Millisecond})

	flushes := make(chan []any, 10)
	build := func(m Message) *Exchange { return &Exchange{Body: m.Body} }
	handle := func(ex *Exchange) { flushes <- ex.Body.([]any) }
	c.register(q, build, handle)

	for i := 1; i <= 5; i++ {
		q.Enqueue(Message{Body: i})
		time.Sleep(10 * time.Millisecond)
	}

	var got [][]any
	for i := 0; i < 2; i++ {
		select {
		case f := <-flushes:
			got = append(got, f)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for flush %d, have %v so far", i+1, got)
		}
	}

	if !reflect.DeepEqual(got[0], []any{1, 2, 3}) {
		t.Fatalf("first flush = %v, want [1 2 3]", got[0])
	}
	if !reflect.DeepEqual(got[1], []any{4, 5}) {
		t.Fatalf("second flush = %v, want [4 5]", got[1])
	}
}

func TestBatchConsumerStopDiscardsPendingBuffer(t *testing.T) {
	q := NewProcessingQueue()
	c := NewBatchConsumer(BatchOptions{Size: 100, Time: 20 * time.Millisecond})

	var mu sync.Mutex
	var flushCount int
	build := func(m Message) *Exchange { return &Exchange{Body: m.Body} }
	handle := func(ex *Exchange) {
		mu.Lock()
		flushCount++
		mu.Unlock()
	}
	c.register(q, build, handle)

	q.Enqueue(Message{Body: "x"})
	c.stop()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if flushCount != 0 {
		t.Fatalf("expected stop to discard the pending buffer, got %d flushes", flushCount)
	}
}

func TestDefaultMergeOrdersBodiesAndUnionsHeaders(t *testing.T) {
	batch := []Message{
		{Body: "a", Headers: Headers{"k1": "v1"}},
		{Body: "b", Headers: Headers{"k1": "v2", "k2": "v3"}},
	}
	merged := DefaultMerge(batch)

	want := []any{"a", "b"}
	if !reflect.DeepEqual(merged.Body, want) {
		t.Fatalf("Body = %v, want %v", merged.Body, want)
	}
	if merged.Headers["k1"] != "v2" {
		t.Fatalf("k1 = %v, want last-write-wins v2", merged.Headers["k1"])
	}
	if merged.Headers["k2"] != "v3" {
		t.Fatalf("k2 = %v, want v3", merged.Headers["k2"])
	}
}
