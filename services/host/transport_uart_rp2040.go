//go:build rp2040

package host

import (
	"context"
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"ecservice-go/config"
)

func init() {
	UARTDial = dialUART
}

// dialUART opens UART0 on the configured pins. Reads block until data
// arrives or the stream is closed.
func dialUART(ctx context.Context, u config.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartx.UART0
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(u.Baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	return &uartStream{u: hw, ctx: sctx, cancel: cancel}, nil
}

type uartStream struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *uartStream) Read(p []byte) (int, error) {
	n, err := s.u.RecvSomeContext(s.ctx, p)
	if err != nil && s.ctx.Err() != nil {
		return n, io.EOF
	}
	return n, err
}

func (s *uartStream) Write(p []byte) (int, error) {
	if s.ctx.Err() != nil {
		return 0, errors.New("uart closed")
	}
	return s.u.Write(p)
}

func (s *uartStream) Close() error { s.cancel(); return nil }
