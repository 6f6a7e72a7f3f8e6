package ltc4015

// I2C 16-bit word operations (Little-endian: LOW then HIGH).

func (d *Device) readWord(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0]) | uint16(d.r[1])<<8, nil
}

func (d *Device) readS16(reg byte) (int16, error) {
	u, err := d.readWord(reg)
	return int16(u), err
}

func (d *Device) writeWord(reg byte, val uint16) error {
	d.w[0] = reg
	d.w[1] = byte(val)      // low
	d.w[2] = byte(val >> 8) // high
	return d.i2c.Tx(d.addr, d.w[:3], nil)
}

// modify is the read-modify-write pattern for bitmask registers.
func (d *Device) modify(reg byte, set, clear uint16) error {
	cur, err := d.readWord(reg)
	if err != nil {
		return err
	}
	return d.writeWord(reg, (cur|set)&^clear)
}

func clampRange(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// qLinear maps a physical value onto a linear code:
//
//	code_physical = (code + addOne?1:0)*step + offset
//
// inverse:
//
//	code = round((value - offset)/step) - (addOne?1:0)
func qLinear(value, step, offset int64, addOne bool, lo, hi int64) uint16 {
	num := value - offset
	if num < 0 {
		num = 0
	}
	code := (num + step/2) / step
	if addOne && code > 0 {
		code--
	}
	return uint16(clampRange(code, lo, hi))
}
