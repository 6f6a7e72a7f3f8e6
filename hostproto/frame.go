// Package hostproto is the bounded binary encoding used on the host link.
//
// A frame is a fixed header, a CBOR body of at most MaxBody bytes and a
// CRC-16-CCITT trailer:
//
//	0      magic 0xEC
//	1      version
//	2      flags
//	3      endpoint (destination for requests, source otherwise)
//	4..5   discriminant, little endian
//	6..7   sequence, little endian
//	8..9   body length, little endian
//	10..   body
//	n..n+1 CRC over header and body, big endian
package hostproto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"ecservice-go/bus"
	"ecservice-go/errcode"
)

const (
	Magic       = 0xEC
	Version     = 1
	HeaderSize  = 10
	TrailerSize = 2
	MaxBody     = 200
	MaxFrame    = HeaderSize + MaxBody + TrailerSize

	crcInitial    = 0xFFFF
	crcPolynomial = 0x1021
)

type Flags uint8

const (
	FlagResponse Flags = 1 << iota
	FlagError
	FlagNotification
)

func (f Flags) Has(b Flags) bool { return f&b != 0 }

var (
	ErrBadMagic     = &errcode.E{C: errcode.BadFrame, Op: "hostproto", Msg: "bad magic"}
	ErrVersion      = &errcode.E{C: errcode.BadFrame, Op: "hostproto", Msg: "unsupported version"}
	ErrBodyTooLarge = &errcode.E{C: errcode.BadFrame, Op: "hostproto", Msg: "body too large"}
	ErrTruncated    = &errcode.E{C: errcode.BadFrame, Op: "hostproto", Msg: "truncated frame"}
	ErrCRC          = &errcode.E{C: errcode.BadFrame, Op: "hostproto", Msg: "crc mismatch"}
)

type Header struct {
	Flags    Flags
	Endpoint bus.EndpointID
	Disc     uint16
	Seq      uint16
	Len      uint16
}

// Frame owns its body storage so reading never allocates.
type Frame struct {
	Header
	body [MaxBody]byte
}

func (f *Frame) Body() []byte { return f.body[:f.Len] }

// SetBody copies b into the frame.
func (f *Frame) SetBody(b []byte) error {
	if len(b) > MaxBody {
		return ErrBodyTooLarge
	}
	f.Len = uint16(copy(f.body[:], b))
	return nil
}

// CRC16 is CRC-16-CCITT with initial value 0xFFFF.
func CRC16(data []byte) uint16 { return crcUpdate(crcInitial, data) }

func crcUpdate(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func (h *Header) put(b []byte) {
	b[0] = Magic
	b[1] = Version
	b[2] = byte(h.Flags)
	b[3] = byte(h.Endpoint)
	binary.LittleEndian.PutUint16(b[4:], h.Disc)
	binary.LittleEndian.PutUint16(b[6:], h.Seq)
	binary.LittleEndian.PutUint16(b[8:], h.Len)
}

// parseHeader validates b before any body byte is read.
func parseHeader(b []byte, h *Header) error {
	if b[0] != Magic {
		return ErrBadMagic
	}
	if b[1] != Version {
		return ErrVersion
	}
	h.Flags = Flags(b[2])
	h.Endpoint = bus.EndpointID(b[3])
	h.Disc = binary.LittleEndian.Uint16(b[4:])
	h.Seq = binary.LittleEndian.Uint16(b[6:])
	h.Len = binary.LittleEndian.Uint16(b[8:])
	if h.Len > MaxBody {
		return ErrBodyTooLarge
	}
	return nil
}

// AppendFrame appends the wire form of f to dst.
func AppendFrame(dst []byte, f *Frame) []byte {
	var hdr [HeaderSize]byte
	f.Header.put(hdr[:])
	dst = append(dst, hdr[:]...)
	dst = append(dst, f.Body()...)
	crc := crcUpdate(CRC16(hdr[:]), f.Body())
	return binary.BigEndian.AppendUint16(dst, crc)
}

// WriteFrame writes f with a single Write call.
func WriteFrame(w io.Writer, f *Frame) error {
	if f.Len > MaxBody {
		return ErrBodyTooLarge
	}
	var buf [MaxFrame]byte
	_, err := w.Write(AppendFrame(buf[:0], f))
	return err
}

// ReadFrame reads exactly one frame. io.EOF is returned only when the
// stream ends cleanly between frames.
func ReadFrame(r io.Reader, f *Frame) error {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return truncated(err)
	}
	if err := parseHeader(hdr[:], &f.Header); err != nil {
		return err
	}
	var crc [TrailerSize]byte
	if _, err := io.ReadFull(r, f.body[:f.Len]); err != nil {
		return noEOF(truncated(err))
	}
	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return noEOF(truncated(err))
	}
	if crcUpdate(CRC16(hdr[:]), f.Body()) != binary.BigEndian.Uint16(crc[:]) {
		return ErrCRC
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

func noEOF(err error) error {
	if err == io.EOF {
		return ErrTruncated
	}
	return err
}

// Reader reads frames from a byte stream and can skip to the next magic
// byte after a framing error.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxFrame)}
}

// ReadFrame reads one frame without consuming it until it is known good.
// A rejected frame costs a single byte, so a frame that starts inside the
// rejected bytes is still found by Resync.
func (r *Reader) ReadFrame(f *Frame) error {
	hdr, err := r.peek(HeaderSize)
	if err != nil {
		return err
	}
	if err := parseHeader(hdr, &f.Header); err != nil {
		_, _ = r.br.Discard(1)
		return err
	}
	n := HeaderSize + int(f.Len) + TrailerSize
	b, err := r.peek(n)
	if err != nil {
		return noEOF(err)
	}
	if CRC16(b[:n-TrailerSize]) != binary.BigEndian.Uint16(b[n-TrailerSize:]) {
		_, _ = r.br.Discard(1)
		return ErrCRC
	}
	copy(f.body[:], b[HeaderSize:n-TrailerSize])
	_, err = r.br.Discard(n)
	return err
}

// peek returns io.EOF only when no byte at all is buffered.
func (r *Reader) peek(n int) ([]byte, error) {
	b, err := r.br.Peek(n)
	if err == io.EOF && len(b) > 0 {
		return nil, ErrTruncated
	}
	return b, err
}

// Resync discards input up to the next magic byte, leaving it unread.
func (r *Reader) Resync() error {
	for {
		b, err := r.br.Peek(1)
		if err != nil {
			return err
		}
		if b[0] == Magic {
			return nil
		}
		if _, err := r.br.Discard(1); err != nil {
			return err
		}
	}
}
