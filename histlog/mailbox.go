package histlog

import "sync"

// mailbox is an unbounded FIFO of entries with a single consumer. Producers
// never block. Closing it is the consumer's signal to drain and exit.
type mailbox struct {
	mu     sync.Mutex
	queue  []Entry
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		wake: make(chan struct{}, 1),
	}
}

// push enqueues e and reports false if the mailbox is already closed.
func (m *mailbox) push(e Entry) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	m.notify()
	return true
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.notify()
}

func (m *mailbox) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// drain moves everything queued so far into into and reports whether the
// mailbox was closed at that point. Nothing is queued after a closed drain.
func (m *mailbox) drain(into []Entry) ([]Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	into = append(into[:0], m.queue...)
	for i := range m.queue {
		m.queue[i] = Entry{}
	}
	m.queue = m.queue[:0]

	return into, m.closed
}
