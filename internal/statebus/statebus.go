// Package statebus fans component state out to any number of observers
// without ever blocking the publisher.
//
// Two delivery policies are supported:
//
//   - DropNew: caller-owned buffered channel; when it is full the new value
//     is dropped and counted.
//   - DropOld: latest-value mailbox; a slow reader only ever sees the most
//     recent value. New mailboxes start with the last published value.
package statebus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("statebus: bus is closed")
	ErrSubscriberExists   = errors.New("statebus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("statebus: subscriber not found")
	ErrNilChannel         = errors.New("statebus: nil channel provided")
	ErrReceiverClosed     = errors.New("statebus: receiver is closed")
)

// DropPolicy defines how the bus handles values when a subscriber cannot keep up
type DropPolicy int

const (
	DropNew DropPolicy = iota
	DropOld
)

// SubscriberStats tracks distribution per subscriber
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber[T any] struct {
	policy DropPolicy
	sent   atomic.Uint64
	drops  atomic.Uint64

	ch     chan<- T   // DropNew
	latest *Latest[T] // DropOld
}

// Bus distributes values of T to subscribers.
type Bus[T any] struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber[T]
	last      *T
	published atomic.Uint64
	closed    bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]*subscriber[T])}
}

// Subscribe registers a channel with the DropNew policy.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subs[id]; exists {
		return ErrSubscriberExists
	}

	b.subs[id] = &subscriber[T]{policy: DropNew, ch: ch}
	return nil
}

// SubscribeLatest registers a DropOld mailbox seeded with the last published value.
func (b *Bus[T]) SubscribeLatest(id string) (*Latest[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subs[id]; exists {
		return nil, ErrSubscriberExists
	}

	l := newLatest[T]()
	if b.last != nil {
		l.set(*b.last)
	}
	b.subs[id] = &subscriber[T]{policy: DropOld, latest: l}
	return l, nil
}

// Publish distributes v to all subscribers. Never blocks.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = &v
	b.published.Add(1)

	for _, s := range b.subs {
		switch s.policy {
		case DropNew:
			select {
			case s.ch <- v:
				s.sent.Add(1)
			default:
				s.drops.Add(1)
			}
		case DropOld:
			if s.latest.set(v) {
				s.drops.Add(1)
			}
			s.sent.Add(1)
		}
	}
}

// Last returns the most recently published value.
func (b *Bus[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.last == nil {
		var zero T
		return zero, false
	}
	return *b.last, true
}

// Unsubscribe removes a subscriber and closes its mailbox if any.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.subs[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if s.latest != nil {
		s.latest.Close()
	}
	delete(b.subs, id)
	return nil
}

// Stats returns distribution counters for a subscriber.
func (b *Bus[T]) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, exists := b.subs[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{Sent: s.sent.Load(), Dropped: s.drops.Load()}, nil
}

// Published returns the total number of published values.
func (b *Bus[T]) Published() uint64 {
	return b.published.Load()
}

// Close shuts down the bus. Mailboxes are closed; caller channels are not.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, s := range b.subs {
		if s.latest != nil {
			s.latest.Close()
		}
	}
	b.subs = nil
}

// Latest is a DropOld mailbox holding the most recent unread value.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	seq    uint64
	read   uint64
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func newLatest[T any]() *Latest[T] {
	return &Latest[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// set stores v and reports whether an unread value was overwritten.
func (l *Latest[T]) set(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	overwritten := l.seq > l.read
	l.value = v
	l.seq++

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return overwritten
}

// Receive blocks until an unread value is available, the mailbox is
// closed or ctx is done.
func (l *Latest[T]) Receive(ctx context.Context) (T, error) {
	for {
		l.mu.Lock()
		if l.seq > l.read {
			l.read = l.seq
			v := l.value
			l.mu.Unlock()
			return v, nil
		}
		closed := l.closed
		l.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrReceiverClosed
		}

		select {
		case <-l.notify:
		case <-l.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryReceive returns the latest value without blocking, read or not.
func (l *Latest[T]) TryReceive() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seq == 0 {
		var zero T
		return zero, false
	}
	l.read = l.seq
	return l.value, true
}

// Close wakes any blocked Receive.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}
