package events

import "sync"

// Feed is a typed publish/subscribe registry. Publish calls every subscriber
// synchronously on the caller's goroutine, in subscription order, with no
// Feed lock held, so subscribers may publish to other feeds.
type Feed[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// NewFeed returns an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{}
}

// Subscribe registers fn and returns a function that removes it.
func (f *Feed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, subscription[T]{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, s := range f.subs {
				if s.id == id {
					f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers v to every current subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.RLock()
	subs := f.subs
	f.mu.RUnlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
