package fwupdate

import (
	"io"
	"sync"

	"ecservice-go/errcode"
)

// MemFlash is a RAM-backed Flash for host builds. Erased bytes read 0xFF.
type MemFlash struct {
	mu        sync.Mutex
	mem       []byte
	erased    uint32
	committed bool
}

func NewMemFlash(size uint32) *MemFlash {
	return &MemFlash{mem: make([]byte, size)}
}

func (m *MemFlash) Size() uint32 { return uint32(len(m.mem)) }

func (m *MemFlash) Erase(n uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > uint32(len(m.mem)) {
		return errcode.InvalidParams
	}
	for i := range m.mem[:n] {
		m.mem[i] = 0xFF
	}
	m.erased = n
	m.committed = false
	return nil
}

func (m *MemFlash) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(m.erased) {
		return 0, errcode.InvalidParams
	}
	return copy(m.mem[off:], p), nil
}

func (m *MemFlash) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off >= int64(len(m.mem)) {
		return 0, io.EOF
	}
	n := copy(p, m.mem[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemFlash) Commit() error {
	m.mu.Lock()
	m.committed = true
	m.mu.Unlock()
	return nil
}

// Committed reports whether the staged image was marked bootable.
func (m *MemFlash) Committed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}
