package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ecservice-go/bus"
)

func TestLoad_EmbeddedBoards(t *testing.T) {
	for _, name := range Boards() {
		b, err := Load(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if b.Name != name {
			t.Fatalf("%s: name %q", name, b.Name)
		}
		if !b.Has(bus.EPPower) {
			t.Fatalf("%s: no power endpoint", name)
		}
	}
}

func TestLoad_EVKTables(t *testing.T) {
	b, err := Load("evk")
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Capacity(bus.EPPower); got != 16 {
		t.Fatalf("power capacity: got %d want 16", got)
	}
	src := b.PowerSources()
	if len(src) != 2 || src[0].Endpoint != bus.EPTypeC0 || src[0].Priority != 2 {
		t.Fatalf("sources: %+v", src)
	}
	topics := b.TopicsFor(bus.EPHost)
	if len(topics) != 6 {
		t.Fatalf("host topics: %v", topics)
	}
	if got := b.TopicsFor(bus.EPPower); len(got) != 2 || got[1] != bus.TopicThermal {
		t.Fatalf("power topics: %v", got)
	}
	if c := b.Power.ThermalCapMa; c.Warm != 1500 || c.Hot != 500 {
		t.Fatalf("thermal caps: %+v", c)
	}
	if b.Thermal.PollPeriod() != 500*time.Millisecond || b.Thermal.HotMilliC != 60000 {
		t.Fatalf("thermal: %+v", b.Thermal)
	}
	if b.Power.NegotiationTimeout() != 500*time.Millisecond {
		t.Fatalf("timeout: %v", b.Power.NegotiationTimeout())
	}
	o := b.BusOptions()
	if o.Publish != bus.PublishDrop || o.FullQueue != bus.FullFail {
		t.Fatalf("bus options: %+v", o)
	}
	if b.Host.Transport.Type != "uart" || b.Host.Transport.UART.Baud != 115200 {
		t.Fatalf("transport: %+v", b.Host.Transport)
	}
}

func TestLoad_Unknown(t *testing.T) {
	old := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = old })
	if _, err := Load("nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecode_Defaults(t *testing.T) {
	b, err := Decode([]byte("endpoints:\n  - name: power\n"))
	if err != nil {
		t.Fatal(err)
	}
	if b.Endpoints[0].Capacity != 8 || b.Power.NegotiationTimeoutMs != 500 || b.Host.RequestTimeoutMs != 250 {
		t.Fatalf("defaults not applied: %+v", b)
	}
	if th := b.Thermal; th.WarmMilliC != 45000 || th.HotMilliC != 60000 || th.HysteresisMilliC != 2000 || th.FaultReads != 3 {
		t.Fatalf("thermal defaults: %+v", th)
	}
}

func TestDecode_RetryPolicy(t *testing.T) {
	raw := `
bus: {publish_policy: retry, publish_retries: 5, publish_retry_us: 200, full_queue_policy: wait}
endpoints: [{name: power}]
`
	b, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	o := b.BusOptions()
	if o.Publish != bus.PublishRetry || o.PublishRetries != 5 || o.PublishRetryInterval != 200*time.Microsecond || o.FullQueue != bus.FullWait {
		t.Fatalf("options: %+v", o)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"no endpoints":       "name: x\n",
		"unknown endpoint":   "endpoints: [{name: toaster}]\n",
		"duplicate endpoint": "endpoints: [{name: power}, {name: power}]\n",
		"capacity":           "endpoints: [{name: power, capacity: 1000}]\n",
		"unknown topic":      "endpoints: [{name: power}]\nsubscriptions: [{topic: weather, endpoints: [power]}]\n",
		"stray subscriber":   "endpoints: [{name: power}]\nsubscriptions: [{topic: battery, endpoints: [host]}]\n",
		"stray source":       "endpoints: [{name: power}]\npower: {sources: [{endpoint: typec0, priority: 1}]}\n",
		"publish policy":     "endpoints: [{name: power}]\nbus: {publish_policy: maybe}\n",
		"duplicate source":   "endpoints: [{name: power}, {name: typec0}]\npower: {sources: [{endpoint: typec0, priority: 2}, {endpoint: typec0, priority: 1}]}\n",
		"thermal thresholds": "endpoints: [{name: thermal}]\nthermal: {warm_mc: 60000, hot_mc: 50000}\n",
		"thermal caps":       "endpoints: [{name: power}]\npower: {thermal_cap_ma: {warm: 500, hot: 1500}}\n",
		"yaml":               "endpoints: [\n",
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFile_RoundTrip(t *testing.T) {
	b, err := Load("mini")
	if err != nil {
		t.Fatal(err)
	}
	out, err := b.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "board.yaml")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		t.Fatal(err)
	}
	b2, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if b2.Name != "mini" || len(b2.Endpoints) != len(b.Endpoints) {
		t.Fatalf("round trip lost data: %+v", b2)
	}
	if !strings.Contains(string(out), "typec0") {
		t.Fatal("marshalled output missing endpoint")
	}
}
