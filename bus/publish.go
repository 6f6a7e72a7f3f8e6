package bus

import (
	"runtime"
	"time"

	"ecservice-go/errcode"
)

// PublishReport describes the outcome of one Publish. Every subscriber
// delivery is independent; a full mailbox fails only its own delivery.
type PublishReport struct {
	Topic     Topic
	Delivered int
	Failed    int
	FailedTo  [MaxSubscribers]EndpointID
}

// FailedEndpoints lists the subscribers that did not receive the copy.
func (r PublishReport) FailedEndpoints() []EndpointID { return r.FailedTo[:r.Failed] }

// Publish delivers a copy of p to every subscriber of topic. The error is
// MailboxFull when at least one delivery failed; the report says which.
func (c *Connection) Publish(topic Topic, p Payload) (PublishReport, error) {
	const op = "publish"
	rep := PublishReport{Topic: topic}
	if !topic.Valid() {
		return rep, &errcode.E{C: errcode.InvalidTopic, Op: op}
	}
	if p == nil {
		return rep, &errcode.E{C: errcode.InvalidPayload, Op: op}
	}

	var ids [MaxSubscribers]EndpointID
	n := c.bus.subscribers(topic, &ids)
	msg := Message{
		From:    c.id,
		To:      Broadcast,
		Topic:   topic,
		Kind:    KindNotification,
		Payload: p,
	}
	for i := 0; i < n; i++ {
		e := c.bus.lookup(ids[i])
		if e == nil {
			continue
		}
		if c.bus.deliverCopy(e, msg) {
			rep.Delivered++
			continue
		}
		rep.FailedTo[rep.Failed] = ids[i]
		rep.Failed++
	}
	if rep.Failed > 0 {
		return rep, &errcode.E{C: errcode.MailboxFull, Op: op, Msg: topic.String()}
	}
	return rep, nil
}

func (b *Bus) deliverCopy(e *entry, msg Message) bool {
	err := e.mb.tryPush(msg)
	if err != nil && b.opts.Publish == PublishRetry {
		for i := 0; i < b.opts.PublishRetries && err != nil; i++ {
			runtime.Gosched()
			time.Sleep(b.opts.PublishRetryInterval)
			err = e.mb.tryPush(msg)
		}
	}
	if err != nil {
		e.rejected.Add(1)
		return false
	}
	e.delivered.Add(1)
	return true
}
