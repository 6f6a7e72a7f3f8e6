// Package ltc4015 is a minimal TinyGo driver for the LTC4015 charger,
// limited to what a power consumer needs: the input current limit,
// suspend/resume and input telemetry.
//
// I2C/SMBus word protocol, data-low then data-high.
package ltc4015

import (
	"errors"

	"tinygo.org/x/drivers"
)

var ErrNoSense = errors.New("RSNSI_uOhm not set")

type Config struct {
	Address    uint16
	RSNSI_uOhm uint32 // input sense resistor
}

type Device struct {
	i2c  drivers.I2C
	addr uint16

	rsnsI_uOhm uint32

	// Fixed buffers to avoid per-call heap allocations.
	w [3]byte
	r [2]byte
}

func New(i2c drivers.I2C, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{i2c: i2c, addr: addr, rsnsI_uOhm: cfg.RSNSI_uOhm}
}

// Configure enables continuous telemetry so VIN/IIN read back while the
// charger is suspended.
func (d *Device) Configure() error {
	return d.modify(regConfigBits, 1<<cfgForceMeasSysOn, 0)
}

// ---------------- Input limit and charger control ----------------

// SetIinLimit_mA programs IIN_LIMIT_SETTING: (code+1)*500 µV across RSNSI.
func (d *Device) SetIinLimit_mA(mA int32) error {
	if d.rsnsI_uOhm == 0 {
		return ErrNoSense
	}
	// µV across RSNSI = (mA * µΩ)/1000
	v_uV := (int64(mA) * int64(d.rsnsI_uOhm)) / 1000
	code := qLinear(v_uV, 500 /*µV*/, 0, true, 0, 63)
	return d.writeWord(regIinLimitSetting, code)
}

// IinLimit_mA reads back the programmed input limit.
func (d *Device) IinLimit_mA() (int32, error) {
	if d.rsnsI_uOhm == 0 {
		return 0, ErrNoSense
	}
	raw, err := d.readWord(regIinLimitSetting)
	if err != nil {
		return 0, err
	}
	uV := (int64(raw&0x3F) + 1) * 500
	return int32(uV * 1000 / int64(d.rsnsI_uOhm)), nil
}

// Suspend stops charging; Resume restarts it.
func (d *Device) Suspend() error { return d.modify(regConfigBits, 1<<cfgSuspendCharger, 0) }
func (d *Device) Resume() error  { return d.modify(regConfigBits, 0, 1<<cfgSuspendCharger) }

// Suspended reports the suspend_charger bit.
func (d *Device) Suspended() (bool, error) {
	v, err := d.readWord(regConfigBits)
	return v&(1<<cfgSuspendCharger) != 0, err
}

// ---------------- Telemetry ----------------

func (d *Device) VinMilliV() (int32, error) {
	raw, err := d.readWord(regVIN)
	if err != nil {
		return 0, err
	}
	return int32(int64(raw) * 1648 / 1000), nil
}

func (d *Device) IinMilliA() (int32, error) {
	if d.rsnsI_uOhm == 0 {
		return 0, ErrNoSense
	}
	raw, err := d.readS16(regIIN)
	if err != nil {
		return 0, err
	}
	uA := (int64(raw) * 1464870) / int64(d.rsnsI_uOhm)
	return int32(uA / 1000), nil
}

func (d *Device) SystemStatus() (SystemStatus, error) {
	v, err := d.readWord(regSystemStatus)
	return SystemStatus(v), err
}
