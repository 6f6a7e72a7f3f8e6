package sim

import "sync"

// Pin is a simulated interrupt input.
type Pin struct {
	mu      sync.Mutex
	level   bool
	handler func()
}

func NewPin(level bool) *Pin { return &Pin{level: level} }

func (p *Pin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *Pin) SetIRQ(h func()) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	return nil
}

func (p *Pin) ClearIRQ() error { return p.SetIRQ(nil) }

// Drive sets the level and raises the interrupt on a change.
func (p *Pin) Drive(level bool) {
	p.mu.Lock()
	changed := p.level != level
	p.level = level
	h := p.handler
	p.mu.Unlock()
	if changed && h != nil {
		h()
	}
}
