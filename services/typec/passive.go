package typec

import (
	"context"
	"sync"

	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/mathx"
)

// RpLevel is the current a non-PD source advertises on CC.
type RpLevel uint8

const (
	RpNone RpLevel = iota
	RpDefault
	Rp1A5
	Rp3A0
)

// RpCapability maps an Rp advertisement to a 5 V capability.
func RpCapability(l RpLevel) types.PowerCapability {
	switch l {
	case RpDefault:
		return types.PowerCapability{VoltageMv: 5000, CurrentMa: 500}
	case Rp1A5:
		return types.PowerCapability{VoltageMv: 5000, CurrentMa: 1500}
	case Rp3A0:
		return types.PowerCapability{VoltageMv: 5000, CurrentMa: 3000}
	}
	return types.PowerCapability{}
}

// PassiveController is a sink without PD messaging: the contract is
// whatever the source advertises on CC, capped by the request.
type PassiveController struct {
	mu  sync.Mutex
	adv types.PowerCapability
}

// SetAdvertised records the current CC advertisement.
func (p *PassiveController) SetAdvertised(c types.PowerCapability) {
	p.mu.Lock()
	p.adv = c
	p.mu.Unlock()
}

func (p *PassiveController) Negotiate(_ context.Context, want types.PowerCapability) (types.PowerCapability, error) {
	p.mu.Lock()
	adv := p.adv
	p.mu.Unlock()
	if adv.IsZero() {
		return types.PowerCapability{}, errcode.InvalidState
	}
	if want.VoltageMv != adv.VoltageMv {
		return types.PowerCapability{}, errcode.Unsupported
	}
	return types.PowerCapability{
		VoltageMv: adv.VoltageMv,
		CurrentMa: mathx.Min(want.CurrentMa, adv.CurrentMa),
	}, nil
}

func (p *PassiveController) Release() error { return nil }
