package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"ecservice-go/config"
)

// Transport opens the byte stream that carries host frames.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type TransportFactory func(config.TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	factories = map[string]TransportFactory{}
	errNoDial = errors.New("host: UARTDial not set")
)

// RegisterTransport adds a named transport. Platform files register the
// ones their build supports.
func RegisterTransport(name string, f TransportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[name] = f
}

// NewTransport resolves cfg.Type against the registered transports.
func NewTransport(cfg config.TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := factories[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	if cfg.Type == "uart" {
		return newUARTTransport(cfg)
	}
	return nil, fmt.Errorf("host: unknown transport %q", cfg.Type)
}

// UARTDial is injected by platform code and opens the configured UART.
var UARTDial func(ctx context.Context, u config.UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct{ cfg config.UARTConfig }

func newUARTTransport(cfg config.TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("host: uart transport requires uart config")
	}
	return &uartTransport{cfg: *cfg.UART}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// StreamTransport adapts a dial function, for tests and in-process links.
type StreamTransport struct {
	Name string
	Dial func(ctx context.Context) (io.ReadWriteCloser, error)
}

func (t StreamTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) { return t.Dial(ctx) }
func (t StreamTransport) String() string                                       { return t.Name }
