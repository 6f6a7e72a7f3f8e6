// Package fwupdate receives a firmware image in fixed-size chunks, stages
// it in flash and verifies it before it is committed.
package fwupdate

import (
	"context"
	"hash/crc32"
	"io"
	"log/slog"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

// Flash is the staging area for the new image.
type Flash interface {
	io.ReaderAt
	io.WriterAt
	Size() uint32
	Erase(n uint32) error
	// Commit marks the staged image bootable.
	Commit() error
}

type Config struct {
	// ProgressEvery is the byte interval between progress notifications.
	ProgressEvery uint32
	Logger        *slog.Logger
}

type Service struct {
	cfg   Config
	flash Flash
	log   *slog.Logger
	conn  *bus.Connection

	st       types.FwStatus
	want     uint32
	reported uint32
	buf      [types.FwChunkBytes]byte
}

func New(f Flash, cfg Config) *Service {
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = 1024
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, flash: f, log: log.With("svc", "fwupdate")}
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPFwUpdate }

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return nil
		}
		s.handle(msg)
	}
}

func (s *Service) handle(msg bus.Message) {
	switch p := msg.Payload.(type) {
	case types.FwBegin:
		s.begin(msg, p)
	case types.FwChunk:
		s.chunk(msg, &p)
	case types.FwFinalize:
		s.finalize(msg)
	case types.GetFwStatus:
		s.reply(msg, s.st)
	default:
		if msg.IsRequest() {
			s.reply(msg, types.ErrorReply{Code: errcode.Unsupported})
		}
	}
}

func (s *Service) begin(msg bus.Message, p types.FwBegin) {
	if p.TotalSize == 0 || p.TotalSize > s.flash.Size() {
		s.reply(msg, types.ErrorReply{Code: errcode.InvalidParams})
		return
	}
	if s.st.Phase == types.FwReceiving {
		s.log.Warn("update restarted", "received", s.st.Received, "total", s.st.Total)
	}
	if err := s.flash.Erase(p.TotalSize); err != nil {
		s.fail(msg, errcode.MapDriverErr(err), err)
		return
	}
	s.st = types.FwStatus{Phase: types.FwReceiving, Total: p.TotalSize}
	s.want = p.CRC32
	s.reported = 0
	s.log.Info("update begin", "size", p.TotalSize)
	s.publish()
	s.reply(msg, s.st)
}

func (s *Service) chunk(msg bus.Message, c *types.FwChunk) {
	if s.st.Phase != types.FwReceiving {
		s.reply(msg, types.ErrorReply{Code: errcode.InvalidState})
		return
	}
	data := c.Bytes()
	end := c.Offset + uint32(len(data))
	switch {
	case len(data) == 0 || int(c.Len) > types.FwChunkBytes:
		s.reply(msg, types.ErrorReply{Code: errcode.InvalidPayload})
		return
	case end <= s.st.Received:
		// Retransmission of an acknowledged chunk.
		s.reply(msg, s.st)
		return
	case c.Offset != s.st.Received || end > s.st.Total:
		s.reply(msg, types.ErrorReply{Code: errcode.InvalidParams})
		return
	}
	if _, err := s.flash.WriteAt(data, int64(c.Offset)); err != nil {
		s.fail(msg, errcode.DeviceIO, err)
		return
	}
	s.st.Received = end
	if s.st.Received-s.reported >= s.cfg.ProgressEvery || s.st.Received == s.st.Total {
		s.reported = s.st.Received
		s.publish()
	}
	s.reply(msg, s.st)
}

func (s *Service) finalize(msg bus.Message) {
	if s.st.Phase != types.FwReceiving || s.st.Received != s.st.Total {
		s.reply(msg, types.ErrorReply{Code: errcode.InvalidState})
		return
	}
	sum, err := s.readBack()
	if err != nil {
		s.fail(msg, errcode.DeviceIO, err)
		return
	}
	if sum != s.want {
		s.log.Error("image crc mismatch", "want", s.want, "got", sum)
		s.fail(msg, errcode.InvalidPayload, nil)
		return
	}
	if err := s.flash.Commit(); err != nil {
		s.fail(msg, errcode.DeviceIO, err)
		return
	}
	s.st.Phase = types.FwVerified
	s.log.Info("image verified", "size", s.st.Total, "crc", sum)
	s.publish()
	s.reply(msg, s.st)
}

// readBack checksums what actually reached flash, not what was sent.
func (s *Service) readBack() (uint32, error) {
	var crc uint32
	for off := uint32(0); off < s.st.Total; {
		n := min(s.st.Total-off, uint32(len(s.buf)))
		if _, err := s.flash.ReadAt(s.buf[:n], int64(off)); err != nil {
			return 0, err
		}
		crc = crc32.Update(crc, crc32.IEEETable, s.buf[:n])
		off += n
	}
	return crc, nil
}

func (s *Service) fail(msg bus.Message, c errcode.Code, err error) {
	s.log.Error("update failed", "code", c, "err", err)
	s.st.Phase = types.FwFailed
	s.st.Err = c
	s.publish()
	s.reply(msg, types.ErrorReply{Code: c})
}

func (s *Service) publish() {
	if _, err := s.conn.Publish(bus.TopicFwUpdate, s.st); err != nil {
		s.log.Warn("publish failed", "err", err)
	}
}

func (s *Service) reply(req bus.Message, p bus.Payload) {
	if !req.IsRequest() {
		return
	}
	if err := s.conn.Reply(req, p); err != nil {
		s.log.Warn("reply dropped", "to", req.From, "err", err)
	}
}
