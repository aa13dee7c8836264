// Package stream fans notifications out to subscribed clients. The
// in-process Broker backs SSE connections on a single replica; the
// Redis publisher in redispub.go spans replicas.
package stream

import (
	"context"
	"sync"

	"permitdesk.org/internal/notify"
)

type subscriber struct {
	id int
	ch chan notify.Notification
}

// Broker fan-outs notifications to all subscribers of a scope.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
	next int
}

// New initialises an empty broker.
func New() *Broker {
	return &Broker{subs: make(map[string][]subscriber)}
}

// Subscribe registers a subscriber for one inbox scope and returns a
// channel which will receive its notifications. The channel is closed
// when the provided context ends.
func (b *Broker) Subscribe(ctx context.Context, scope notify.Scope) <-chan notify.Notification {
	ch := make(chan notify.Notification, 16)
	key := scopeKey(scope)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[key] = append(b.subs[key], subscriber{id: id, ch: ch})
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		list := b.subs[key]
		for i, sub := range list {
			if sub.id == id {
				b.subs[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers the notification to every subscriber of its scope.
// It satisfies notify.Publisher.
func (b *Broker) Publish(ctx context.Context, n notify.Notification) error {
	key := scopeKey(notify.ScopeOf(n))

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[key] {
		select {
		case sub.ch <- n:
		default:
			// Drop when subscriber is slow to avoid blocking; clients
			// reconcile via the inbox query API.
		}
	}
	return nil
}

func scopeKey(scope notify.Scope) string {
	if scope.UserID != "" {
		return "user:" + scope.UserID
	}
	return "unit:" + string(scope.Unit)
}
