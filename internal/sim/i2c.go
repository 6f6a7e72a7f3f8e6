package sim

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

var errNack = errors.New("sim: i2c nack")

// Target is one simulated device on the bus. w holds the command and any
// data; r is filled for reads.
type Target interface {
	Transfer(w, r []byte) error
}

// I2C is a simulated bus. Transactions are serialized as on real hardware.
type I2C struct {
	mu      sync.Mutex
	targets map[uint16]Target
}

var _ drivers.I2C = (*I2C)(nil)

func NewI2C() *I2C { return &I2C{targets: map[uint16]Target{}} }

// Attach places t at addr.
func (b *I2C) Attach(addr uint16, t Target) {
	b.mu.Lock()
	b.targets[addr] = t
	b.mu.Unlock()
}

func (b *I2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[addr]
	if !ok || len(w) == 0 {
		return errNack
	}
	return t.Transfer(w, r)
}

// wordRegs is a 16-bit little-endian register file.
type wordRegs struct {
	mu   sync.Mutex
	regs map[byte]uint16
}

func (m *wordRegs) get(reg byte) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

func (m *wordRegs) set(reg byte, v uint16) {
	m.mu.Lock()
	m.regs[reg] = v
	m.mu.Unlock()
}

func (m *wordRegs) transfer(w, r []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg := w[0]
	if len(w) >= 3 {
		m.regs[reg] = uint16(w[1]) | uint16(w[2])<<8
	}
	if len(r) >= 2 {
		v := m.regs[reg]
		r[0], r[1] = byte(v), byte(v>>8)
	}
}
