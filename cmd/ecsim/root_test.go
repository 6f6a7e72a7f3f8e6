package main

import (
	"strings"
	"testing"
	"time"

	"ecservice-go/bus"
	"ecservice-go/types"
)

func TestHostLink(t *testing.T) {
	cases := []struct {
		spec    string
		name    string
		wantErr bool
	}{
		{spec: "none", name: "none"},
		{spec: "board"},
		{spec: "ws:ws://127.0.0.1:9000/ec", name: "ws"},
		{spec: "ws://127.0.0.1:9000/ec", name: "ws"},
		{spec: "serial:/dev/ttyACM0", name: "serial"},
		{spec: "serial", wantErr: true},
		{spec: "ws:http://example.com", wantErr: true},
		{spec: "carrier-pigeon", wantErr: true},
	}
	for _, tc := range cases {
		linkSpec = tc.spec
		tr, err := hostLink()
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tc.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tc.spec, err)
			continue
		}
		if tc.name == "" {
			if tr != nil {
				t.Errorf("%s: expected board transport", tc.spec)
			}
			continue
		}
		if tr == nil || !strings.HasPrefix(tr.String(), tc.name) {
			t.Errorf("%s: got %v", tc.spec, tr)
		}
	}
	linkSpec = "none"
}

func TestFormatEvent(t *testing.T) {
	line := formatEvent(1500*time.Millisecond, bus.Message{
		From:    bus.EPPower,
		Topic:   bus.TopicPowerPolicy,
		Payload: types.NegotiationFailed{Source: bus.EPTypeC0, Attempts: 3},
	})
	for _, want := range []string{"1.500s", "NegotiationFailed", "Attempts:3"} {
		if !strings.Contains(line, want) {
			t.Errorf("%q missing %q", line, want)
		}
	}
}

func TestFormatEvent_Thermal(t *testing.T) {
	line := formatEvent(time.Second, bus.Message{
		From:    bus.EPThermal,
		Topic:   bus.TopicThermal,
		Payload: types.ThermalState{Level: types.ThermalHot, TempMilliC: 65000},
	})
	for _, want := range []string{"thermal", "ThermalState", "TempMilliC:65000"} {
		if !strings.Contains(line, want) {
			t.Errorf("%q missing %q", line, want)
		}
	}
}

func TestStartReports_RejectsBadSchedule(t *testing.T) {
	if err := startReports(t.Context(), nil, "every now and then"); err == nil {
		t.Fatal("expected a parse error")
	}
	if err := startReports(t.Context(), nil, ""); err != nil {
		t.Fatal(err)
	}
}
