package pubsub

import "sync"

// Mailbox is an unbounded FIFO queue exposed as a channel. Put never blocks,
// so a slow consumer delays its own deliveries without stalling producers.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	signal  chan struct{}
	out     chan T
	discard chan struct{}
	once    sync.Once
}

func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		signal:  make(chan struct{}, 1),
		out:     make(chan T),
		discard: make(chan struct{}),
	}
	go m.pump()
	return m
}

// Put enqueues v. It returns false once the mailbox is closed.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// C delivers queued values in order. It is closed after Close once the
// backlog is drained, or right away after Discard.
func (m *Mailbox[T]) C() <-chan T { return m.out }

// Close stops accepting values; queued values are still delivered.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Discard closes the mailbox and drops the backlog. Use it when nobody will
// read C again.
func (m *Mailbox[T]) Discard() {
	m.Close()
	m.once.Do(func() { close(m.discard) })
}

// Len reports the number of undelivered values.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Mailbox[T]) pump() {
	defer close(m.out)
	for {
		v, ok := m.next()
		if !ok {
			return
		}
		select {
		case m.out <- v:
		case <-m.discard:
			return
		}
	}
}

func (m *Mailbox[T]) next() (T, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.items[0]
			var zero T
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return v, true
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			var zero T
			return zero, false
		}

		select {
		case <-m.signal:
		case <-m.discard:
			var zero T
			return zero, false
		}
	}
}
