package bus

import (
	"context"

	"ecservice-go/errcode"
)

// Failure is implemented by response payloads that carry a remote error.
// Request surfaces it as its error return.
type Failure interface {
	Payload
	Err() error
}

// pendingSlot is a capacity-one reply mailbox reserved for the lifetime of
// one Request call.
type pendingSlot struct {
	used  bool
	seq   uint32
	owner EndpointID
	ch    chan Message
}

// Request sends p to to and waits for the matching reply or for ctx to end.
// On timeout or cancellation the reply slot is released, so a reply that
// arrives later is discarded and counted.
func (c *Connection) Request(ctx context.Context, to EndpointID, p Payload) (Message, error) {
	const op = "request"
	if p == nil {
		return Message{}, &errcode.E{C: errcode.InvalidPayload, Op: op}
	}
	if to == c.id {
		return Message{}, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "request to self"}
	}
	e := c.bus.lookup(to)
	if e == nil {
		return Message{}, &errcode.E{C: errcode.UnknownEndpoint, Op: op, Msg: to.String()}
	}
	slot, seq, err := c.bus.acquirePending(c.id)
	if err != nil {
		return Message{}, err
	}
	defer c.bus.releasePending(slot)

	err = c.bus.enqueue(ctx, e, Message{
		From:    c.id,
		To:      to,
		Kind:    KindRequest,
		Seq:     seq,
		Payload: p,
	})
	if err != nil {
		return Message{}, err
	}

	select {
	case resp := <-c.bus.pending[slot].ch:
		if f, ok := resp.Payload.(Failure); ok {
			if ferr := f.Err(); ferr != nil {
				return resp, ferr
			}
		}
		return resp, nil
	case <-ctx.Done():
		return Message{}, ctxCode(ctx)
	}
}

// Reply answers req. It returns NoWaiter when the requester has already
// given up; the reply is then dropped and counted against the requester.
func (c *Connection) Reply(req Message, p Payload) error {
	const op = "reply"
	if req.Kind != KindRequest {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "not a request"}
	}
	if p == nil {
		return &errcode.E{C: errcode.InvalidPayload, Op: op}
	}
	return c.bus.complete(Message{
		From:    c.id,
		To:      req.From,
		Kind:    KindResponse,
		Seq:     req.Seq,
		Payload: p,
	})
}

func (b *Bus) acquirePending(owner EndpointID) (int, uint32, error) {
	b.pmu.Lock()
	defer b.pmu.Unlock()
	for i := range b.pending {
		s := &b.pending[i]
		if s.used {
			continue
		}
		seq := b.seq.Add(1)
		if seq == 0 {
			seq = b.seq.Add(1)
		}
		s.used = true
		s.seq = seq
		s.owner = owner
		return i, seq, nil
	}
	return 0, 0, &errcode.E{C: errcode.Busy, Op: "request", Msg: "no free reply slot"}
}

func (b *Bus) releasePending(i int) {
	b.pmu.Lock()
	s := &b.pending[i]
	owner := s.owner
	s.used = false
	s.seq = 0
	s.owner = EndpointNone
	var late bool
	select {
	case <-s.ch:
		// A reply slipped in after the waiter stopped listening.
		late = true
	default:
	}
	b.pmu.Unlock()
	if late {
		b.countLate(owner)
	}
}

func (b *Bus) complete(resp Message) error {
	b.pmu.Lock()
	for i := range b.pending {
		s := &b.pending[i]
		if !s.used || s.seq != resp.Seq || s.owner != resp.To {
			continue
		}
		select {
		case s.ch <- resp:
			b.pmu.Unlock()
			return nil
		default:
			// Already answered.
		}
		break
	}
	b.pmu.Unlock()
	b.countLate(resp.To)
	return &errcode.E{C: errcode.NoWaiter, Op: "reply", Msg: resp.To.String()}
}

func (b *Bus) countLate(id EndpointID) {
	if e := b.lookup(id); e != nil {
		e.late.Add(1)
	}
}
