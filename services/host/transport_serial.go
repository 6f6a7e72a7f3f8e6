//go:build !tinygo

package host

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"

	"ecservice-go/config"
)

func init() {
	RegisterTransport("serial", newSerialTransport)
}

type serialTransport struct{ cfg config.SerialConfig }

func newSerialTransport(cfg config.TransportConfig) (Transport, error) {
	if cfg.Serial == nil || cfg.Serial.Port == "" {
		return nil, errors.New("host: serial transport requires a port")
	}
	return &serialTransport{cfg: *cfg.Serial}, nil
}

func (s *serialTransport) Open(context.Context) (io.ReadWriteCloser, error) {
	baud := s.cfg.Baud
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", s.cfg.Port, err)
	}
	return port, nil
}

func (s *serialTransport) String() string { return "serial:" + s.cfg.Port }
