package broadcast

import (
	"sync"

	"github.com/jpalmerr/dispatchboard/reactive"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 16

// Update is a published value. Seq increases by one per publish.
type Update[T any] struct {
	Seq   uint64
	Value T
}

// Hub stores the latest published value and notifies subscribers.
//
// Hub is safe for concurrent use. Subscribers receive updates via buffered
// channels; if a subscriber's buffer is full, the update is dropped for that
// subscriber to avoid blocking the publisher.
type Hub[T any] struct {
	mu     sync.RWMutex
	latest Update[T]
	has    bool

	subMu       sync.RWMutex
	subscribers map[chan Update[T]]struct{}
}

// NewHub creates an empty [Hub].
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subscribers: make(map[chan Update[T]]struct{}),
	}
}

// Publish stores v as the latest value and notifies all subscribers.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	h.latest = Update[T]{Seq: h.latest.Seq + 1, Value: v}
	h.has = true
	u := h.latest
	h.mu.Unlock()

	h.notifySubscribers(u)
}

// Latest returns the most recent update. ok is false before the first publish.
func (h *Hub[T]) Latest() (u Update[T], ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.has
}

// Subscribe creates a new subscription.
//
// Caller must call [Hub.Unsubscribe] when done to prevent resource leaks.
func (h *Hub[T]) Subscribe() <-chan Update[T] {
	ch := make(chan Update[T], subscriberBuffer)

	h.subMu.Lock()
	h.subscribers[ch] = struct{}{}
	h.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (h *Hub[T]) Unsubscribe(ch <-chan Update[T]) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	for subCh := range h.subscribers {
		if subCh == ch {
			delete(h.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	return len(h.subscribers)
}

// Follow publishes view on rt through a watcher named name: once
// immediately, then once per settle cycle in which view changed.
// Stop the returned watcher to detach.
func (h *Hub[T]) Follow(rt *reactive.Runtime, name string, view reactive.View[T]) *reactive.Watcher {
	return rt.Watch(name, func(s *reactive.Scope) error {
		h.Publish(view.Read(s))
		return nil
	})
}

func (h *Hub[T]) notifySubscribers(u Update[T]) {
	h.subMu.RLock()
	defer h.subMu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			// subscriber is slow, drop the update
		}
	}
}
