package bus

import (
	"context"
	"sync"

	"ecservice-go/errcode"
)

// Mailbox is the bounded inbound FIFO of one endpoint. Storage is allocated
// once when the endpoint registers and never grows. The lock is held only
// for the O(1) push or pop, never across a wait.
type Mailbox struct {
	owner EndpointID

	mu   sync.Mutex
	buf  []Message
	head int
	n    int

	ready chan struct{} // signalled after a push
	space chan struct{} // signalled after a pop
}

func newMailbox(owner EndpointID, capacity int) *Mailbox {
	return &Mailbox{
		owner: owner,
		buf:   make([]Message, capacity),
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
	}
}

func (m *Mailbox) Owner() EndpointID { return m.owner }
func (m *Mailbox) Cap() int          { return len(m.buf) }

func (m *Mailbox) Len() int {
	m.mu.Lock()
	n := m.n
	m.mu.Unlock()
	return n
}

// tryPush appends msg or fails with MailboxFull, leaving contents unchanged.
func (m *Mailbox) tryPush(msg Message) error {
	m.mu.Lock()
	if m.n == len(m.buf) {
		m.mu.Unlock()
		return errcode.MailboxFull
	}
	m.buf[(m.head+m.n)%len(m.buf)] = msg
	m.n++
	m.mu.Unlock()
	signal(m.ready)
	return nil
}

// pushWait blocks until there is room or ctx ends.
func (m *Mailbox) pushWait(ctx context.Context, msg Message) error {
	for {
		if err := m.tryPush(msg); err == nil {
			// Pass the wake on to any other blocked sender.
			if m.Len() < m.Cap() {
				signal(m.space)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctxCode(ctx)
		case <-m.space:
		}
	}
}

// TryReceive pops the oldest message without waiting.
func (m *Mailbox) TryReceive() (Message, bool) {
	m.mu.Lock()
	if m.n == 0 {
		m.mu.Unlock()
		return Message{}, false
	}
	msg := m.buf[m.head]
	m.buf[m.head] = Message{}
	m.head = (m.head + 1) % len(m.buf)
	m.n--
	m.mu.Unlock()
	signal(m.space)
	return msg, true
}

// Receive waits for the next message. Cancelling ctx abandons the wait
// with no side effect on the queue.
func (m *Mailbox) Receive(ctx context.Context) (Message, error) {
	for {
		if msg, ok := m.TryReceive(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return Message{}, ctxCode(ctx)
		case <-m.ready:
		}
	}
}

// Ready fires after a push. It may fire spuriously; drain with TryReceive.
func (m *Mailbox) Ready() <-chan struct{} { return m.ready }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func ctxCode(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errcode.Timeout
	}
	return errcode.Cancelled
}
