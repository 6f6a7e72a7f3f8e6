package sim

import (
	"sync"
)

// SBS command codes the gauge model answers.
const (
	sbsTemperature        = 0x08
	sbsVoltage            = 0x09
	sbsCurrent            = 0x0A
	sbsRelativeSoC        = 0x0D
	sbsRemainingCapacity  = 0x0F
	sbsFullChargeCapacity = 0x10
	sbsBatteryStatus      = 0x16
	sbsCycleCount         = 0x17
	sbsDesignCapacity     = 0x18
	sbsDesignVoltage      = 0x19
	sbsManufacturerName   = 0x20
	sbsDeviceChemistry    = 0x22

	sbsStatusDischarging = 1 << 6
	sbsStatusFull        = 1 << 5
)

// Gauge models a 2S smart battery pack.
type Gauge struct {
	wordRegs
	bmu    sync.Mutex
	blocks map[byte]string
	failed bool
}

func NewGauge() *Gauge {
	g := &Gauge{
		wordRegs: wordRegs{regs: map[byte]uint16{
			sbsTemperature:        2982,
			sbsVoltage:            7600,
			sbsCurrent:            0,
			sbsRelativeSoC:        60,
			sbsRemainingCapacity:  3000,
			sbsFullChargeCapacity: 5000,
			sbsBatteryStatus:      sbsStatusDischarging,
			sbsCycleCount:         12,
			sbsDesignCapacity:     5200,
			sbsDesignVoltage:      7400,
		}},
		blocks: map[byte]string{
			sbsManufacturerName: "SimCell",
			sbsDeviceChemistry:  "LION",
		},
	}
	return g
}

func (g *Gauge) Transfer(w, r []byte) error {
	g.bmu.Lock()
	failed := g.failed
	s, isBlock := g.blocks[w[0]]
	g.bmu.Unlock()
	if failed {
		return errNack
	}
	if isBlock {
		r[0] = byte(len(s))
		copy(r[1:], s)
		return nil
	}
	g.transfer(w, r)
	return nil
}

// SetFailed makes the gauge stop acknowledging.
func (g *Gauge) SetFailed(v bool) {
	g.bmu.Lock()
	g.failed = v
	g.bmu.Unlock()
}

// SetCharge sets state of charge and the signed pack current in mA.
func (g *Gauge) SetCharge(soc uint8, currentMa int16) {
	g.set(sbsRelativeSoC, uint16(soc))
	g.set(sbsRemainingCapacity, uint16(uint32(soc)*uint32(g.get(sbsFullChargeCapacity))/100))
	g.set(sbsCurrent, uint16(currentMa))
	status := uint16(0)
	switch {
	case soc >= 100:
		status = sbsStatusFull
	case currentMa <= 0:
		status = sbsStatusDischarging
	}
	g.set(sbsBatteryStatus, status)
}

// SoC returns the modelled state of charge.
func (g *Gauge) SoC() uint8 { return uint8(g.get(sbsRelativeSoC)) }

// LTC4015 registers the charger model implements.
const (
	ltcConfigBits      = 0x14
	ltcIinLimitSetting = 0x15
	ltcSuspendBit      = 1 << 8
)

// Charger models the LTC4015 input-limit and suspend controls.
type Charger struct {
	wordRegs
	rsnsiMicroOhm uint32
}

func NewCharger(rsnsiMicroOhm uint32) *Charger {
	return &Charger{wordRegs: wordRegs{regs: map[byte]uint16{}}, rsnsiMicroOhm: rsnsiMicroOhm}
}

func (c *Charger) Transfer(w, r []byte) error {
	c.transfer(w, r)
	return nil
}

// Suspended reports the SUSPEND_CHARGER bit.
func (c *Charger) Suspended() bool { return c.get(ltcConfigBits)&ltcSuspendBit != 0 }

// LimitMa decodes the programmed input current limit.
func (c *Charger) LimitMa() uint32 {
	if c.rsnsiMicroOhm == 0 {
		return 0
	}
	code := uint32(c.get(ltcIinLimitSetting))
	return (code + 1) * 500 * 1000 / c.rsnsiMicroOhm
}
