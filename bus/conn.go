package bus

import (
	"context"
	"time"

	"ecservice-go/errcode"
)

// Connection is the handle a registered endpoint uses to talk to the bus.
// It is owned by a single task.
type Connection struct {
	bus *Bus
	id  EndpointID
	mb  *Mailbox
}

func (c *Connection) ID() EndpointID { return c.id }
func (c *Connection) Bus() *Bus      { return c.bus }

// Receive waits for the next inbound message in FIFO order.
func (c *Connection) Receive(ctx context.Context) (Message, error) {
	return c.mb.Receive(ctx)
}

// TryReceive pops the next message if one is queued.
func (c *Connection) TryReceive() (Message, bool) { return c.mb.TryReceive() }

// Ready fires after a message lands in the mailbox. Service loops select
// on it next to their timers and interrupt rings.
func (c *Connection) Ready() <-chan struct{} { return c.mb.Ready() }

// Pending returns the number of queued messages.
func (c *Connection) Pending() int { return c.mb.Len() }

// Send delivers a one-way notification to a single endpoint. ctx only
// matters under the FullWait policy.
func (c *Connection) Send(ctx context.Context, to EndpointID, p Payload) error {
	if p == nil {
		return &errcode.E{C: errcode.InvalidPayload, Op: "send"}
	}
	e := c.bus.lookup(to)
	if e == nil {
		return &errcode.E{C: errcode.UnknownEndpoint, Op: "send", Msg: to.String()}
	}
	return c.bus.enqueue(ctx, e, Message{
		From:    c.id,
		To:      to,
		Kind:    KindNotification,
		Payload: p,
	})
}

// RequestTimeout is Request with a relative deadline.
func (c *Connection) RequestTimeout(to EndpointID, p Payload, d time.Duration) (Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Request(ctx, to, p)
}

func (b *Bus) enqueue(ctx context.Context, e *entry, msg Message) error {
	var err error
	if b.opts.FullQueue == FullWait && ctx != nil {
		err = e.mb.pushWait(ctx, msg)
	} else {
		err = e.mb.tryPush(msg)
	}
	if err != nil {
		e.rejected.Add(1)
		return err
	}
	e.delivered.Add(1)
	return nil
}
