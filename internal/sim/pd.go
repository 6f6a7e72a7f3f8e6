package sim

import (
	"context"
	"sync"

	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/mathx"
)

// PDMode selects how a simulated partner answers negotiation.
type PDMode uint8

const (
	PDAccept PDMode = iota
	PDReject
	PDSilent // never answers; the caller's deadline fires
)

// PDPartner is a simulated source behind a Type-C port's PD controller.
type PDPartner struct {
	mu       sync.Mutex
	offer    types.PowerCapability
	mode     PDMode
	contract types.PowerCapability
	requests int
}

func (p *PDPartner) SetOffer(c types.PowerCapability) {
	p.mu.Lock()
	p.offer = c
	p.mu.Unlock()
}

func (p *PDPartner) SetMode(m PDMode) {
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
}

// Contract returns the agreed contract and the number of requests seen.
func (p *PDPartner) Contract() (types.PowerCapability, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contract, p.requests
}

func (p *PDPartner) Negotiate(ctx context.Context, want types.PowerCapability) (types.PowerCapability, error) {
	p.mu.Lock()
	p.requests++
	mode, offer := p.mode, p.offer
	p.mu.Unlock()

	switch mode {
	case PDSilent:
		<-ctx.Done()
		return types.PowerCapability{}, errcode.Timeout
	case PDReject:
		return types.PowerCapability{}, errcode.NegotiationFailed
	}
	if offer.IsZero() || want.VoltageMv != offer.VoltageMv {
		return types.PowerCapability{}, errcode.InvalidParams
	}
	got := types.PowerCapability{VoltageMv: want.VoltageMv, CurrentMa: mathx.Min(want.CurrentMa, offer.CurrentMa)}
	p.mu.Lock()
	p.contract = got
	p.mu.Unlock()
	return got, nil
}

func (p *PDPartner) Release() error {
	p.mu.Lock()
	p.contract = types.PowerCapability{}
	p.mu.Unlock()
	return nil
}
