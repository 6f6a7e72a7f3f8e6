package sim

import (
	"context"
	"time"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

// Console owns the debug endpoint. It observes every topic and lets the
// CLI issue requests as an internal endpoint would.
type Console struct {
	events chan bus.Message
	ready  chan struct{}
	conn   *bus.Connection
}

func NewConsole() *Console {
	return &Console{events: make(chan bus.Message, 64), ready: make(chan struct{})}
}

func (c *Console) Endpoint() bus.EndpointID { return bus.EPDebug }

// Events delivers observed notifications. When the reader falls behind the
// oldest are lost, never the bus.
func (c *Console) Events() <-chan bus.Message { return c.events }

func (c *Console) Run(ctx context.Context, conn *bus.Connection) error {
	c.conn = conn
	close(c.ready)
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return nil
		}
		if msg.IsRequest() {
			_ = conn.Reply(msg, types.ErrorReply{Code: errcode.Unsupported})
			continue
		}
		select {
		case c.events <- msg:
		default:
		}
	}
}

// Request sends p to to once the console is running.
func (c *Console) Request(ctx context.Context, to bus.EndpointID, p bus.Payload, d time.Duration) (bus.Message, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return bus.Message{}, ctx.Err()
	}
	rctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return c.conn.Request(rctx, to, p)
}

func allTopics() []bus.Topic {
	var ts []bus.Topic
	for t := bus.Topic(1); t.Valid(); t++ {
		ts = append(ts, t)
	}
	return ts
}
