package timex

import (
	"testing"
	"time"
)

func TestResetTimer_DiscardsPendingFire(t *testing.T) {
	tm := time.NewTimer(time.Millisecond)
	time.Sleep(5 * time.Millisecond) // fired, not drained
	ResetTimer(tm, 50*time.Millisecond)
	select {
	case <-tm.C:
		t.Fatal("stale fire delivered")
	case <-time.After(10 * time.Millisecond):
	}
	select {
	case <-tm.C:
	case <-time.After(time.Second):
		t.Fatal("timer never fired after reset")
	}
}

func TestNewStoppedTimer(t *testing.T) {
	tm := NewStoppedTimer()
	select {
	case <-tm.C:
		t.Fatal("stopped timer fired")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestMillisSince(t *testing.T) {
	if got := MillisSince(time.Now().Add(time.Hour)); got != 0 {
		t.Fatalf("future start: got %d", got)
	}
	if got := MillisSince(time.Now().Add(-60 * 24 * time.Hour)); got != ^uint32(0) {
		t.Fatalf("saturation: got %d", got)
	}
	if got := MillisSince(time.Now().Add(-2 * time.Second)); got < 2000 || got > 3000 {
		t.Fatalf("two seconds: got %d", got)
	}
}
