// Package bus is the endpoint-addressed message router shared by every
// service. Endpoints register a bounded mailbox during boot, the registry
// is then frozen, and from that point on services exchange requests,
// responses and published notifications through value copies only.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"ecservice-go/errcode"
)

// Table ceilings. Boards may configure smaller tables but never larger.
const (
	MaxEndpoints   = 12
	MaxSubscribers = 8
	MaxPending     = 16
	MaxCapacity    = 64
)

// PublishPolicy decides what happens when a subscriber mailbox is full.
type PublishPolicy uint8

const (
	// PublishDrop fails that one delivery immediately. The failure is
	// counted against the subscriber and listed in the PublishReport.
	PublishDrop PublishPolicy = iota
	// PublishRetry retries the delivery a bounded number of times,
	// sleeping between attempts, before failing it like PublishDrop.
	PublishRetry
)

func (p PublishPolicy) String() string {
	if p == PublishRetry {
		return "retry"
	}
	return "drop"
}

// FullQueuePolicy decides what Send and Request do on a full destination.
type FullQueuePolicy uint8

const (
	// FullFail returns MailboxFull at once.
	FullFail FullQueuePolicy = iota
	// FullWait waits for room until the caller's context ends.
	FullWait
)

func (p FullQueuePolicy) String() string {
	if p == FullWait {
		return "wait"
	}
	return "fail"
}

type Options struct {
	TableSize            int // endpoint slots, 0 means MaxEndpoints
	MaxSubscribers       int // per topic, 0 means MaxSubscribers
	Publish              PublishPolicy
	PublishRetries       int
	PublishRetryInterval time.Duration
	FullQueue            FullQueuePolicy
}

// Stats are per-endpoint delivery counters.
type Stats struct {
	Delivered     uint32 // messages accepted into the mailbox
	Rejected      uint32 // deliveries refused because the mailbox was full
	LateResponses uint32 // replies to this endpoint that arrived after it stopped waiting
}

type entry struct {
	id EndpointID
	mb *Mailbox

	delivered atomic.Uint32
	rejected  atomic.Uint32
	late      atomic.Uint32
}

type subList struct {
	ids [MaxSubscribers]EndpointID
	n   int
}

type Bus struct {
	opts Options

	mu      sync.RWMutex
	frozen  atomic.Bool
	entries [MaxEndpoints]entry
	n       int
	subs    [MaxTopics]subList

	pmu     sync.Mutex
	pending [MaxPending]pendingSlot
	seq     atomic.Uint32
}

// New builds an empty registry in its initialization phase.
func New(opts Options) *Bus {
	if opts.TableSize <= 0 || opts.TableSize > MaxEndpoints {
		opts.TableSize = MaxEndpoints
	}
	if opts.MaxSubscribers <= 0 || opts.MaxSubscribers > MaxSubscribers {
		opts.MaxSubscribers = MaxSubscribers
	}
	if opts.Publish == PublishRetry {
		if opts.PublishRetries <= 0 {
			opts.PublishRetries = 3
		}
		if opts.PublishRetryInterval <= 0 {
			opts.PublishRetryInterval = 500 * time.Microsecond
		}
	}
	b := &Bus{opts: opts}
	for i := range b.pending {
		b.pending[i].ch = make(chan Message, 1)
	}
	return b
}

func (b *Bus) Options() Options { return b.opts }

// Register creates the mailbox for id. Only legal before Freeze. A failed
// call leaves the registry unchanged.
func (b *Bus) Register(id EndpointID, capacity int) (*Connection, error) {
	const op = "register"
	if !id.Valid() {
		return nil, &errcode.E{C: errcode.UnknownEndpoint, Op: op, Msg: id.String()}
	}
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "capacity out of range"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen.Load() {
		return nil, &errcode.E{C: errcode.RegistryFrozen, Op: op, Msg: id.String()}
	}
	if b.lookupLocked(id) != nil {
		return nil, &errcode.E{C: errcode.DuplicateEndpoint, Op: op, Msg: id.String()}
	}
	if b.n == b.opts.TableSize {
		return nil, &errcode.E{C: errcode.RegistryFull, Op: op, Msg: id.String()}
	}
	e := &b.entries[b.n]
	e.id = id
	e.mb = newMailbox(id, capacity)
	b.n++
	return &Connection{bus: b, id: id, mb: e.mb}, nil
}

// Subscribe adds id to the subscriber list of topic. Subscribing twice is
// a no-op.
func (b *Bus) Subscribe(topic Topic, id EndpointID) error {
	const op = "subscribe"
	if !topic.Valid() {
		return &errcode.E{C: errcode.InvalidTopic, Op: op}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen.Load() {
		return &errcode.E{C: errcode.RegistryFrozen, Op: op, Msg: topic.String()}
	}
	if b.lookupLocked(id) == nil {
		return &errcode.E{C: errcode.UnknownEndpoint, Op: op, Msg: id.String()}
	}
	sl := &b.subs[topic]
	for i := 0; i < sl.n; i++ {
		if sl.ids[i] == id {
			return nil
		}
	}
	if sl.n == b.opts.MaxSubscribers {
		return &errcode.E{C: errcode.SubscriptionLimitExceeded, Op: op, Msg: topic.String() + " <- " + id.String()}
	}
	sl.ids[sl.n] = id
	sl.n++
	return nil
}

// Freeze ends the initialization phase. Further Register and Subscribe
// calls fail with RegistryFrozen.
func (b *Bus) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen.Store(true)
}

func (b *Bus) Frozen() bool { return b.frozen.Load() }

// Registered reports whether id has a mailbox.
func (b *Bus) Registered(id EndpointID) bool { return b.lookup(id) != nil }

// Len returns the number of registered endpoints.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// Subscribers returns a copy of the subscriber list of topic.
func (b *Bus) Subscribers(topic Topic) []EndpointID {
	if !topic.Valid() {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	sl := b.subs[topic]
	return append([]EndpointID(nil), sl.ids[:sl.n]...)
}

// Stats returns the delivery counters of id.
func (b *Bus) Stats(id EndpointID) (Stats, bool) {
	e := b.lookup(id)
	if e == nil {
		return Stats{}, false
	}
	return Stats{
		Delivered:     e.delivered.Load(),
		Rejected:      e.rejected.Load(),
		LateResponses: e.late.Load(),
	}, true
}

func (b *Bus) lookup(id EndpointID) *entry {
	// Once frozen the table is immutable and can be read without the lock.
	if b.frozen.Load() {
		return b.lookupLocked(id)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lookupLocked(id)
}

func (b *Bus) lookupLocked(id EndpointID) *entry {
	for i := 0; i < b.n; i++ {
		if b.entries[i].id == id {
			return &b.entries[i]
		}
	}
	return nil
}

func (b *Bus) subscribers(topic Topic, dst *[MaxSubscribers]EndpointID) int {
	b.mu.RLock()
	sl := b.subs[topic]
	b.mu.RUnlock()
	*dst = sl.ids
	return sl.n
}
