package sbs

import (
	"errors"
	"testing"
)

type fakeGauge struct {
	words  map[byte]uint16
	blocks map[byte]string
	fail   byte
}

func (f *fakeGauge) Tx(addr uint16, w, r []byte) error {
	if addr != AddressDefault {
		return errors.New("nack")
	}
	cmd := w[0]
	if f.fail != 0 && cmd == f.fail {
		return errors.New("io")
	}
	if s, ok := f.blocks[cmd]; ok {
		r[0] = byte(len(s))
		copy(r[1:], s)
		return nil
	}
	v := f.words[cmd]
	r[0], r[1] = byte(v), byte(v>>8)
	return nil
}

func newGauge() *fakeGauge {
	return &fakeGauge{
		words: map[byte]uint16{
			cmdVoltage:            12300,
			cmdCurrent:            uint16(0xFFFF - 499), // -500 mA
			cmdTemperature:        2982,
			cmdRelativeSoC:        87,
			cmdRemainingCapacity:  4350,
			cmdFullChargeCapacity: 5000,
			cmdBatteryStatus:      StatusDischarging,
			cmdDesignCapacity:     5200,
			cmdDesignVoltage:      11100,
			cmdCycleCount:         42,
		},
		blocks: map[byte]string{
			cmdManufacturerName: "ACME",
			cmdDeviceChemistry:  "LION",
		},
	}
}

func TestReadState(t *testing.T) {
	d := New(newGauge(), 0)
	s, err := d.ReadState()
	if err != nil {
		t.Fatal(err)
	}
	if s.VoltageMv != 12300 || s.CurrentMa != -500 || s.RelativeSoC != 87 || s.FullChargeMah != 5000 {
		t.Fatalf("state: %+v", s)
	}
	if s.Charging() {
		t.Fatal("discharging pack reported as charging")
	}
}

func TestReadInfo(t *testing.T) {
	d := New(newGauge(), 0)
	in, err := d.ReadInfo()
	if err != nil {
		t.Fatal(err)
	}
	if in.DesignCapacityMah != 5200 || in.CycleCount != 42 {
		t.Fatalf("info: %+v", in)
	}
	if string(in.Manufacturer[:in.ManufacturerLen]) != "ACME" || string(in.Chemistry[:in.ChemistryLen]) != "LION" {
		t.Fatalf("strings: %q %q", in.Manufacturer[:in.ManufacturerLen], in.Chemistry[:in.ChemistryLen])
	}
}

func TestReadState_StopsOnError(t *testing.T) {
	g := newGauge()
	g.fail = cmdRelativeSoC
	if _, err := New(g, 0).ReadState(); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadBlock_RejectsOversize(t *testing.T) {
	g := newGauge()
	long := make([]byte, MaxBlock)
	for i := range long {
		long[i] = 'x'
	}
	g.blocks[cmdManufacturerName] = string(long) + "y"
	// The length byte claims 33 bytes; only 32 fit in the receive buffer.
	_, err := New(g, 0).ReadInfo()
	if !errors.Is(err, ErrBlockLength) {
		t.Fatalf("got %v want %v", err, ErrBlockLength)
	}
}
