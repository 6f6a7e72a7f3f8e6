// Package sbs reads a Smart Battery System fuel gauge over SMBus.
package sbs

import (
	"errors"

	"tinygo.org/x/drivers"
)

// 7-bit SMBus address of a smart battery.
const AddressDefault = 0x0B

// SBS command codes.
const (
	cmdTemperature        = 0x08 // 0.1 K
	cmdVoltage            = 0x09 // mV
	cmdCurrent            = 0x0A // mA, signed
	cmdRelativeSoC        = 0x0D // %
	cmdRemainingCapacity  = 0x0F // mAh
	cmdFullChargeCapacity = 0x10 // mAh
	cmdBatteryStatus      = 0x16
	cmdCycleCount         = 0x17
	cmdDesignCapacity     = 0x18 // mAh
	cmdDesignVoltage      = 0x19 // mV
	cmdManufacturerName   = 0x20 // block
	cmdDeviceChemistry    = 0x22 // block
)

// BatteryStatus bits.
const (
	StatusFullyDischarged  = 1 << 4
	StatusFullyCharged     = 1 << 5
	StatusDischarging      = 1 << 6
	StatusOverTempAlarm    = 1 << 12
	StatusTerminateCharge  = 1 << 14
	StatusOverChargedAlarm = 1 << 15
)

// MaxBlock is the largest block read this driver accepts.
const MaxBlock = 32

var ErrBlockLength = errors.New("sbs: block length out of range")

// State is one dynamic reading.
type State struct {
	VoltageMv     uint16
	CurrentMa     int16
	TempDeciK     uint16
	RelativeSoC   uint8
	RemainingMah  uint16
	FullChargeMah uint16
	Status        uint16
}

func (s State) Charging() bool { return s.Status&StatusDischarging == 0 && s.CurrentMa > 0 }

// Info is the static description.
type Info struct {
	DesignCapacityMah uint16
	DesignVoltageMv   uint16
	CycleCount        uint16
	Manufacturer      [MaxBlock]byte
	ManufacturerLen   uint8
	Chemistry         [MaxBlock]byte
	ChemistryLen      uint8
}

type Device struct {
	i2c  drivers.I2C
	addr uint16

	w [1]byte
	r [2]byte
	b [MaxBlock + 1]byte
}

func New(i2c drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{i2c: i2c, addr: addr}
}

// ReadState reads every dynamic register. The first failure aborts.
func (d *Device) ReadState() (State, error) {
	var s State
	var err error
	read := func(cmd byte) uint16 {
		if err != nil {
			return 0
		}
		var v uint16
		v, err = d.readWord(cmd)
		return v
	}
	s.VoltageMv = read(cmdVoltage)
	s.CurrentMa = int16(read(cmdCurrent))
	s.TempDeciK = read(cmdTemperature)
	s.RelativeSoC = uint8(read(cmdRelativeSoC))
	s.RemainingMah = read(cmdRemainingCapacity)
	s.FullChargeMah = read(cmdFullChargeCapacity)
	s.Status = read(cmdBatteryStatus)
	return s, err
}

// ReadInfo reads the static registers and strings.
func (d *Device) ReadInfo() (Info, error) {
	var in Info
	var err error
	if in.DesignCapacityMah, err = d.readWord(cmdDesignCapacity); err != nil {
		return in, err
	}
	if in.DesignVoltageMv, err = d.readWord(cmdDesignVoltage); err != nil {
		return in, err
	}
	if in.CycleCount, err = d.readWord(cmdCycleCount); err != nil {
		return in, err
	}
	n, err := d.readBlock(cmdManufacturerName, in.Manufacturer[:])
	if err != nil {
		return in, err
	}
	in.ManufacturerLen = uint8(n)
	n, err = d.readBlock(cmdDeviceChemistry, in.Chemistry[:])
	if err != nil {
		return in, err
	}
	in.ChemistryLen = uint8(n)
	return in, nil
}

// SMBus read word: little-endian.
func (d *Device) readWord(cmd byte) (uint16, error) {
	d.w[0] = cmd
	if err := d.i2c.Tx(d.addr, d.w[:], d.r[:]); err != nil {
		return 0, err
	}
	return uint16(d.r[0]) | uint16(d.r[1])<<8, nil
}

// SMBus block read: first byte is the count.
func (d *Device) readBlock(cmd byte, dst []byte) (int, error) {
	d.w[0] = cmd
	if err := d.i2c.Tx(d.addr, d.w[:], d.b[:]); err != nil {
		return 0, err
	}
	n := int(d.b[0])
	if n > MaxBlock {
		return 0, ErrBlockLength
	}
	return copy(dst, d.b[1:1+n]), nil
}
