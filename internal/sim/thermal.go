package sim

import (
	"sync"

	"tinygo.org/x/drivers/shtc3"
)

// Thermometer models an SHTC3 at shtc3.SHTC3_ADDRESS. It answers the
// measure command with the configured temperature and a fixed 40% RH.
type Thermometer struct {
	mu      sync.Mutex
	milliC  int32
	failed  bool
	asleep  bool
	samples int
}

func NewThermometer(milliC int32) *Thermometer { return &Thermometer{milliC: milliC} }

func (t *Thermometer) Transfer(w, r []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed {
		return errNack
	}
	switch string(w) {
	case shtc3.SHTC3_CMD_WAKEUP:
		t.asleep = false
	case shtc3.SHTC3_CMD_SLEEP:
		t.asleep = true
	case shtc3.SHTC3_CMD_MEASURE_HP:
		if t.asleep || len(r) < 6 {
			return errNack
		}
		t.samples++
		temp := rawTemp(t.milliC)
		hum := uint16(40 * 65536 / 100)
		r[0], r[1] = byte(temp>>8), byte(temp)
		r[3], r[4] = byte(hum>>8), byte(hum)
	default:
		return errNack
	}
	return nil
}

// rawTemp inverts the driver conversion T = 175 * raw / 65536 - 45,
// rounding up so the driver reads back at or just above milliC.
func rawTemp(milliC int32) uint16 {
	v := (int64(milliC) + 45000) << 13
	return uint16((v + 21874) / 21875)
}

// Set changes the temperature the sensor reports.
func (t *Thermometer) Set(milliC int32) {
	t.mu.Lock()
	t.milliC = milliC
	t.mu.Unlock()
}

// SetFailed makes the sensor stop acknowledging.
func (t *Thermometer) SetFailed(v bool) {
	t.mu.Lock()
	t.failed = v
	t.mu.Unlock()
}

// Samples returns the number of measurements taken.
func (t *Thermometer) Samples() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}
