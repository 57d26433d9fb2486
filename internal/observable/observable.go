// Package observable provides a latest-value publish/subscribe cell.
//
// A Value has one logical producer and any number of subscribers. New
// subscribers immediately receive the current value (if one was ever set).
// Delivery coalesces: a subscriber that falls behind only ever sees the
// newest value, never a partially applied one.
package observable

import "sync"

// Value holds the latest published T.
type Value[T any] struct {
	mu   sync.Mutex
	val  T
	set  bool
	subs map[*Subscription[T]]struct{}
}

// New returns a Value with no published value yet.
func New[T any]() *Value[T] {
	return &Value[T]{subs: make(map[*Subscription[T]]struct{})}
}

// NewWith returns a Value that starts with initial already published.
func NewWith[T any](initial T) *Value[T] {
	v := New[T]()
	v.val = initial
	v.set = true
	return v
}

// Get returns the latest value and whether any value was published.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.set
}

// Set publishes val to every subscriber.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.publishLocked(val)
}

// Update applies fn to the current value and publishes the result as one
// atomic step. It returns the published value.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := fn(v.val)
	v.publishLocked(next)
	return next
}

func (v *Value[T]) publishLocked(val T) {
	v.val = val
	v.set = true
	for s := range v.subs {
		s.offer(val)
	}
}

// Subscribe registers a new subscriber. The caller must Close it.
func (v *Value[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{ch: make(chan T, 1), owner: v}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs[s] = struct{}{}
	if v.set {
		s.offer(v.val)
	}
	return s
}

// Subscribers returns the number of open subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Subscription receives values published on a Value.
type Subscription[T any] struct {
	ch    chan T
	owner *Value[T]
	once  sync.Once
}

// C delivers published values. It is closed by Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscription and closes C. Safe to call twice.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.owner.mu.Lock()
		defer s.owner.mu.Unlock()
		delete(s.owner.subs, s)
		close(s.ch)
	})
}

// offer is called with owner.mu held; it is the only sender on ch, so after
// dropping a stale value the send cannot block.
func (s *Subscription[T]) offer(val T) {
	select {
	case s.ch <- val:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- val
}
