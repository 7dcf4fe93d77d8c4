// Package pubsub provides a small in-process publish/subscribe primitive.
//
// A Topic fans a value out to every live subscription, in subscription
// order. Publishing is expected to happen from a single goroutine (the
// acquisition worker); subscribing and closing subscriptions is safe from
// any goroutine and is synchronized against in-flight publishes.
package pubsub

import "sync"

// Topic fans values out to subscribers.
type Topic[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []*Subscription[T]
}

// Subscription is a handle for one registered listener. Close it to stop
// receiving values; Close is idempotent.
type Subscription[T any] struct {
	topic *Topic[T]
	id    int
	fn    func(T)
}

// NewTopic returns an empty topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{}
}

// Subscribe registers fn and returns its subscription handle. A nil fn
// yields a subscription that receives nothing.
func (t *Topic[T]) Subscribe(fn func(T)) *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	sub := &Subscription[T]{topic: t, id: t.nextID, fn: fn}
	t.subs = append(t.subs, sub)
	return sub
}

// Publish delivers v to every live subscriber synchronously.
// The subscriber list is snapshotted under the lock so a subscriber may
// close its own (or another) subscription from within its callback.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	snapshot := make([]*Subscription[T], len(t.subs))
	copy(snapshot, t.subs)
	t.mu.Unlock()
	for _, sub := range snapshot {
		if fn := sub.callback(); fn != nil {
			fn(v)
		}
	}
}

// Len reports the number of live subscriptions.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (s *Subscription[T]) callback() func(T) {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	return s.fn
}

// Close unregisters the subscription. After Close returns, the callback
// will not be invoked again.
func (s *Subscription[T]) Close() {
	if s == nil || s.topic == nil {
		return
	}
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	s.fn = nil
	for i, sub := range t.subs {
		if sub.id == s.id {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			break
		}
	}
}
