package timex

import "time"

// ResetTimer re-arms t for d, discarding a pending fire.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	StopTimer(t)
	t.Reset(d)
}

// StopTimer stops t and drains a fire that raced the stop.
func StopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// NewStoppedTimer returns a timer that will not fire until reset.
func NewStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	StopTimer(t)
	return t
}

// MillisSince returns the milliseconds elapsed since start, saturating
// at the uint32 range (about 49 days).
func MillisSince(start time.Time) uint32 {
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}
