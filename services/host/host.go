// Package host relays between the bus and an external host over a framed
// byte link. Host requests are forwarded to internal endpoints and the
// replies returned with the same sequence number; subscribed
// notifications are forwarded as they arrive.
package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
	"ecservice-go/hostproto"
	"ecservice-go/types"
)

type Config struct {
	RequestTimeout time.Duration
	Transport      Transport
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	Logger         *slog.Logger
}

// ConfigFromBoard resolves the board's host section, including its
// transport.
func ConfigFromBoard(b *config.Board) (Config, error) {
	tr, err := NewTransport(b.Host.Transport)
	if err != nil {
		return Config{}, err
	}
	return Config{RequestTimeout: b.Host.RequestTimeout(), Transport: tr}, nil
}

// Stats are link counters since start.
type Stats struct {
	FramesIn   uint32
	FramesOut  uint32
	BadFrames  uint32
	Dropped    uint32 // notifications discarded while the link was down
	LinkResets uint32
}

type Service struct {
	cfg  Config
	log  *slog.Logger
	conn *bus.Connection

	wmu   sync.Mutex
	nseq  uint16
	stats struct {
		in, out, bad, dropped, resets atomic.Uint32
	}
}

func New(cfg Config) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 250 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, log: log.With("svc", "host")}
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPHost }

func (s *Service) Stats() Stats {
	return Stats{
		FramesIn:   s.stats.in.Load(),
		FramesOut:  s.stats.out.Load(),
		BadFrames:  s.stats.bad.Load(),
		Dropped:    s.stats.dropped.Load(),
		LinkResets: s.stats.resets.Load(),
	}
}

// Run supervises the link until ctx ends. Open failures and link loss
// back off exponentially.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	if s.cfg.Transport == nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "host", Msg: "no transport"}
	}
	backoff := backoffSeq(s.cfg.BackoffMin, s.cfg.BackoffMax)
	for ctx.Err() == nil {
		rwc, err := s.cfg.Transport.Open(ctx)
		if err != nil {
			d := backoff()
			s.log.Warn("link open failed", "transport", s.cfg.Transport, "retry_in", d, "err", err)
			s.idle(ctx, d)
			continue
		}
		s.log.Info("link up", "transport", s.cfg.Transport)
		backoff = backoffSeq(s.cfg.BackoffMin, s.cfg.BackoffMax)
		err = s.handleLink(ctx, rwc)
		_ = rwc.Close()
		if ctx.Err() != nil {
			break
		}
		s.stats.resets.Add(1)
		d := backoff()
		s.log.Warn("link lost", "retry_in", d, "err", err)
		s.idle(ctx, d)
	}
	return nil
}

// idle waits d while discarding notifications that have nowhere to go.
func (s *Service) idle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			return
		case <-s.conn.Ready():
			for {
				msg, ok := s.conn.TryReceive()
				if !ok {
					break
				}
				s.refuse(msg)
			}
		}
	}
}

func (s *Service) refuse(msg bus.Message) {
	if msg.IsRequest() {
		_ = s.conn.Reply(msg, types.ErrorReply{Code: errcode.Unsupported})
		return
	}
	s.stats.dropped.Add(1)
}

func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser) error {
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- s.readLoop(lctx, rwc)
	}()
	defer wg.Wait()
	// Closing unblocks the reader.
	defer rwc.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case <-s.conn.Ready():
			for {
				msg, ok := s.conn.TryReceive()
				if !ok {
					break
				}
				if msg.IsRequest() {
					_ = s.conn.Reply(msg, types.ErrorReply{Code: errcode.Unsupported})
					continue
				}
				if err := s.forward(rwc, msg); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Service) readLoop(ctx context.Context, rwc io.ReadWriteCloser) error {
	rd := hostproto.NewReader(rwc)
	var f hostproto.Frame
	for {
		err := rd.ReadFrame(&f)
		if err == nil {
			s.stats.in.Add(1)
			if err := s.serve(ctx, rwc, &f); err != nil {
				return err
			}
			continue
		}
		if errcode.Of(err) != errcode.BadFrame || errors.Is(err, hostproto.ErrTruncated) {
			return err
		}
		s.stats.bad.Add(1)
		s.log.Warn("bad frame", "err", err)
		if err := rd.Resync(); err != nil {
			return err
		}
	}
}

// serve handles one inbound frame. Only I/O errors end the link.
func (s *Service) serve(ctx context.Context, w io.Writer, f *hostproto.Frame) error {
	if f.Flags != 0 {
		// Hosts only send requests.
		s.stats.bad.Add(1)
		return nil
	}
	from := f.Endpoint
	fail := func(c errcode.Code) error {
		return s.write(w, hostproto.Header{
			Flags:    hostproto.FlagResponse | hostproto.FlagError,
			Endpoint: from,
			Seq:      f.Seq,
		}, types.ErrorReply{Code: c})
	}

	if from.External() || !s.conn.Bus().Registered(from) {
		return fail(errcode.UnknownEndpoint)
	}
	if !hostproto.HostRequest(f.Disc) {
		return fail(errcode.Unsupported)
	}
	p, err := hostproto.DecodeFrame(f)
	if err != nil {
		return fail(errcode.Of(err))
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	resp, err := s.conn.Request(rctx, from, p)
	cancel()
	if err != nil {
		s.log.Debug("host request failed", "to", from, "disc", f.Disc, "err", err)
		return fail(errcode.Of(err))
	}
	return s.write(w, hostproto.Header{Flags: hostproto.FlagResponse, Endpoint: from, Seq: f.Seq}, resp.Payload)
}

func (s *Service) forward(w io.Writer, msg bus.Message) error {
	if !hostproto.Known(msg.Payload.Discriminant()) {
		return nil
	}
	s.wmu.Lock()
	s.nseq++
	seq := s.nseq
	s.wmu.Unlock()
	return s.write(w, hostproto.Header{Flags: hostproto.FlagNotification, Endpoint: msg.From, Seq: seq}, msg.Payload)
}

// write is shared by the reader and the forwarder, so frames never
// interleave on the wire.
func (s *Service) write(w io.Writer, h hostproto.Header, p bus.Payload) error {
	var f hostproto.Frame
	if err := hostproto.EncodeFrame(&f, h, p); err != nil {
		s.log.Warn("encode failed", "disc", p.Discriminant(), "err", err)
		return nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := hostproto.WriteFrame(w, &f); err != nil {
		return err
	}
	s.stats.out.Add(1)
	return nil
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 250 * time.Millisecond
	}
	if max < min {
		max = 5 * time.Second
		if max < min {
			max = min
		}
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}
