package routecraft

import (
	"context"
	"strings"
	"sync"
)

// ChannelHandler receives a message sent to a channel. A handler that
// returns an error is logged and skipped; it never blocks delivery to
// the channel's other subscribers.
type ChannelHandler func(Message) error

// subscription wraps a handler with an identity token so Unsubscribe can
// remove one specific registration without perturbing the others.
type subscription struct {
	token   int
	handler ChannelHandler
}

// channel is one named pub/sub topic: an ordered list of subscribers in
// registration order.
type channel struct {
	mu   sync.Mutex
	subs []subscription
	next int
}

// ChannelBus is the named pub/sub fabric shared by an entire Context.
// Channels are created lazily on first subscribe/send. Modeled on the
// event bus's nil-safe, mutex-guarded subscriber bookkeeping, generalized
// from one global subscriber set to many named topics, and from
// broadcast-only delivery to a send that waits for every subscriber to
// settle (the channel contract the core exposes to routes, not the
// fire-and-forget contract the event bus exposes to observers).
type ChannelBus struct {
	logger Logger

	mu       sync.Mutex
	channels map[string]*channel
}

// NewChannelBus returns an empty bus. logger scopes per-subscriber
// failure logs.
func NewChannelBus(logger Logger) *ChannelBus {
	return &ChannelBus{
		logger:   logger,
		channels: make(map[string]*channel),
	}
}

// normalizeChannelName collapses every non-alphanumeric rune to '-', per
// the channel naming contract.
func normalizeChannelName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func (b *ChannelBus) channelFor(name string) *channel {
	name = normalizeChannelName(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[name]
	if !ok {
		ch = &channel{}
		b.channels[name] = ch
	}
	return ch
}

// unsubToken identifies one Subscribe call so it can later be removed
// without affecting other subscribers on the same name.
type unsubToken struct {
	name  string
	token int
}

// Subscribe appends handler to name's subscriber list and returns a
// token that Unsubscribe uses to remove only this registration.
func (b *ChannelBus) Subscribe(name string, handler ChannelHandler) unsubToken {
	ch := b.channelFor(name)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.next++
	tok := ch.next
	ch.subs = append(ch.subs, subscription{token: tok, handler: handler})
	return unsubToken{name: normalizeChannelName(name), token: tok}
}

// Send delivers message to every current subscriber of name, invoked
// concurrently. Send returns only once every subscriber has completed or
// failed; a failing subscriber is logged and skipped, the others still
// receive the message.
func (b *ChannelBus) Send(name string, message Message) {
	ch := b.channelFor(name)

	ch.mu.Lock()
	subs := append([]subscription(nil), ch.subs...)
	ch.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil && b.logger != nil {
					b.logger.Error("channel subscriber panicked", "channel", name, "panic", r)
				}
			}()
			if err := s.handler(message); err != nil && b.logger != nil {
				b.logger.Error("channel subscriber failed", "channel", name, "error", err)
			}
		}(s)
	}
	wg.Wait()
}

// Unsubscribe removes the single registration identified by tok. Safe to
// call more than once; subsequent calls are no-ops.
func (b *ChannelBus) Unsubscribe(tok unsubToken) {
	ch := b.channelFor(tok.name)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i, s := range ch.subs {
		if s.token == tok.token {
			ch.subs = append(ch.subs[:i], ch.subs[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes every subscriber bound to name.
func (b *ChannelBus) UnsubscribeAll(name string) {
	ch := b.channelFor(name)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.subs = nil
}

// SubscriberCount reports how many handlers are currently bound to name;
// primarily useful in tests asserting fan-out registration.
func (b *ChannelBus) SubscriberCount(name string) int {
	ch := b.channelFor(name)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Destination returns a to() Destination that publishes each exchange's
// body and headers to name; every current subscriber receives it.
func (b *ChannelBus) Destination(name string) Destination {
	return DestinationFunc(func(ex *Exchange) error {
		b.Send(name, Message{Body: ex.Body, Headers: ex.Headers})
		return nil
	})
}

// Source returns a from() Source that subscribes to name for the
// lifetime of the route, forwarding every published message into the
// route's pipeline via emit. Multiple routes may each hold their own
// Source on the same name — channels support many subscribers, unlike
// a direct endpoint's single consumer.
func (b *ChannelBus) Source(name string) Source {
	return SourceFunc(func(ctx context.Context, emit Emit) error {
		tok := b.Subscribe(name, func(m Message) error {
			emit(m.Body, m.Headers)
			return nil
		})
		defer b.Unsubscribe(tok)

		<-ctx.Done()
		return ignoreCancellation(ctx.Err())
	})
}
