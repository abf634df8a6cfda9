// Package eventbus is an in-process publish/subscribe bus for
// aggregator.DomainEvent. Handlers run synchronously on the publishing
// goroutine; a panicking or erroring handler is isolated and never
// interrupts delivery to its siblings.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/sirupsen/logrus"
)

// Handler processes a published event. A returned error is logged, never
// propagated to the publisher or to sibling handlers.
type Handler func(ctx context.Context, event aggregator.DomainEvent) error

type subscription struct {
	id      uint64
	typed   aggregator.EventType
	isAll   bool
	handler Handler
}

// Bus is safe for concurrent Publish/Subscribe/unsubscribe from any
// number of goroutines. A nil *Bus is a valid no-op publisher, so hosts
// that don't wire one up can still call bus.Publish(...) unconditionally.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
	seq  uint64
	log  logrus.FieldLogger
}

// New builds an empty Bus. log may be nil, in which case handler errors
// are dropped instead of logged.
func New(log logrus.FieldLogger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers h for events of type t, returning an idempotent
// unsubscribe function.
func (b *Bus) Subscribe(t aggregator.EventType, h Handler) (unsubscribe func()) {
	if b == nil || h == nil {
		return func() {}
	}
	id := atomic.AddUint64(&b.seq, 1)
	sub := &subscription{id: id, typed: t, handler: h}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return b.unsubscribeFunc(id)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	if b == nil || h == nil {
		return func() {}
	}
	id := atomic.AddUint64(&b.seq, 1)
	sub := &subscription{id: id, isAll: true, handler: h}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return b.unsubscribeFunc(id)
}

func (b *Bus) unsubscribeFunc(id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish dispatches event to every matching handler. A nil receiver is a
// no-op, matching hosts that don't supply an event bus at all.
func (b *Bus) Publish(ctx context.Context, event aggregator.DomainEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.isAll || s.typed == event.Type {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.dispatch(ctx, s, event)
	}
}

func (b *Bus) dispatch(ctx context.Context, s *subscription, event aggregator.DomainEvent) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.WithField("event", event.Type).WithField("panic", r).Error("event handler panicked")
		}
	}()
	if err := s.handler(ctx, event); err != nil && b.log != nil {
		b.log.WithError(err).WithField("event", event.Type).Warn("event handler failed")
	}
}
