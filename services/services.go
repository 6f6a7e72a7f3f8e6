// Package services defines the unit every subsystem is built from and the
// supervisor that wires a closed set of them onto one bus.
package services

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
)

// Service owns one endpoint and runs as one task. Run returns nil when ctx
// ends and an error only when the service cannot continue.
type Service interface {
	Endpoint() bus.EndpointID
	Run(ctx context.Context, conn *bus.Connection) error
}

type binding struct {
	svc      Service
	capacity int
	topics   []bus.Topic
	conn     *bus.Connection
}

// Supervisor registers services during boot, freezes the registry and then
// runs every service task until the first failure or cancellation.
type Supervisor struct {
	bus    *bus.Bus
	log    *slog.Logger
	items  []*binding
	booted bool
}

func NewSupervisor(b *bus.Bus, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{bus: b, log: log.With("svc", "supervisor")}
}

// Add queues svc for registration with the given mailbox capacity and
// topic subscriptions.
func (s *Supervisor) Add(svc Service, capacity int, topics ...bus.Topic) {
	s.items = append(s.items, &binding{svc: svc, capacity: capacity, topics: topics})
}

// AddFromBoard adds services using the board's capacities and subscription
// lists. Every board endpoint must be covered by exactly one service.
func (s *Supervisor) AddFromBoard(board *config.Board, svcs ...Service) error {
	have := map[bus.EndpointID]bool{}
	for _, svc := range svcs {
		id := svc.Endpoint()
		if !board.Has(id) {
			return &errcode.E{C: errcode.UnknownEndpoint, Op: "boot", Msg: id.String() + " is not a board endpoint"}
		}
		have[id] = true
		s.Add(svc, board.Capacity(id), board.TopicsFor(id)...)
	}
	for _, id := range board.EndpointIDs() {
		if !have[id] {
			return &errcode.E{C: errcode.InvalidParams, Op: "boot", Msg: "no service owns " + id.String()}
		}
	}
	return nil
}

// Boot runs the registration phase. Any error here is a wiring defect and
// the system must not start.
func (s *Supervisor) Boot() error {
	if s.booted {
		return &errcode.E{C: errcode.RegistryFrozen, Op: "boot"}
	}
	for _, it := range s.items {
		conn, err := s.bus.Register(it.svc.Endpoint(), it.capacity)
		if err != nil {
			s.log.Error("register failed", "endpoint", it.svc.Endpoint(), "fatal", errcode.Fatal(errcode.Of(err)), "err", err)
			return err
		}
		it.conn = conn
	}
	for _, it := range s.items {
		for _, t := range it.topics {
			if err := s.bus.Subscribe(t, it.svc.Endpoint()); err != nil {
				s.log.Error("subscribe failed", "endpoint", it.svc.Endpoint(), "topic", t, "fatal", errcode.Fatal(errcode.Of(err)), "err", err)
				return err
			}
		}
	}
	s.bus.Freeze()
	s.booted = true
	s.log.Info("registry frozen", "endpoints", s.bus.Len())
	return nil
}

// Conn returns the connection registered for id after Boot.
func (s *Supervisor) Conn(id bus.EndpointID) *bus.Connection {
	for _, it := range s.items {
		if it.svc.Endpoint() == id {
			return it.conn
		}
	}
	return nil
}

// Run starts every service and waits. The first service error cancels the
// others and is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.booted {
		if err := s.Boot(); err != nil {
			return err
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, it := range s.items {
		it := it
		g.Go(func() error {
			err := it.svc.Run(gctx, it.conn)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("service stopped", "endpoint", it.svc.Endpoint(), "err", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
