// Package eventstream implements the hot-multicast broadcast primitives used
// by the version chain store and the data manager. It generalizes the
// subscribe/cancel/deliver mechanics of a topic-routed event bus into a
// generic, single-typed channel with no history: subscribers only ever see
// values emitted while they are subscribed.
package eventstream

import "sync"

// Handler is invoked once per emitted value for every active subscription.
type Handler[T any] func(value T)

// Subscription is returned by Subscribe and cancels delivery to its handler
// when Cancel is called. Calling Cancel more than once is a no-op.
type Subscription interface {
	Cancel()
}

type subscription[T any] struct {
	id     uint64
	stream *Stream[T]
}

func (s *subscription[T]) Cancel() {
	s.stream.remove(s.id)
}

// Stream is a hot multicast broadcaster for values of type T. It has no
// replay buffer: a subscriber receives only values emitted after it
// subscribes. Emit delivers synchronously, in the caller's goroutine, to a
// snapshot of the subscriber list taken under lock — the same pattern the
// in-process event bus this type is modeled on uses to keep handler
// execution outside the lock.
type Stream[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]Handler[T]
	nextID  uint64
	onCount func(n int)
}

// New creates an empty Stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[uint64]Handler[T])}
}

// Subscribe registers handler to receive all future emissions. The returned
// Subscription must be canceled by the caller once no longer needed.
func (s *Stream[T]) Subscribe(handler Handler[T]) Subscription {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = handler
	n := len(s.subs)
	cb := s.onCount
	s.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	return &subscription[T]{id: id, stream: s}
}

// Emit delivers value to every handler currently subscribed. Handlers that
// unsubscribe themselves (or others) during delivery do not affect the
// current delivery pass, since the subscriber list is snapshotted up front.
func (s *Stream[T]) Emit(value T) {
	s.mu.Lock()
	handlers := make([]Handler[T], 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(value)
	}
}

// Len reports the number of currently active subscriptions.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// onSubscriberCountChanged registers a callback invoked with the new
// subscriber count every time it changes. It exists so ReplayStream can
// observe transitions to and from zero without re-implementing delivery.
func (s *Stream[T]) onSubscriberCountChanged(cb func(n int)) {
	s.mu.Lock()
	s.onCount = cb
	s.mu.Unlock()
}

func (s *Stream[T]) remove(id uint64) {
	s.mu.Lock()
	if _, ok := s.subs[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, id)
	n := len(s.subs)
	cb := s.onCount
	s.mu.Unlock()

	if cb != nil {
		cb(n)
	}
}
