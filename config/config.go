// Package config holds the static board tables: which endpoints exist and
// how large their mailboxes are, who subscribes to what, the power-source
// preference order and the tuning of every service. Tables are embedded
// YAML decoded once at boot; nothing is reconfigured at runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ecservice-go/bus"
)

// EmbeddedConfigLookup allows overriding how board tables are resolved.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

// Boards lists the embedded board names.
func Boards() []string {
	out := make([]string, 0, len(embeddedConfigs))
	for k := range embeddedConfigs {
		out = append(out, k)
	}
	return out
}

type Board struct {
	Name          string         `yaml:"name"`
	Bus           BusConfig      `yaml:"bus"`
	Endpoints     []EndpointSpec `yaml:"endpoints"`
	Subscriptions []Subscription `yaml:"subscriptions"`
	Power         PowerConfig    `yaml:"power"`
	Battery       BatteryConfig  `yaml:"battery"`
	Button        ButtonConfig   `yaml:"button"`
	Platform      PlatformConfig `yaml:"platform"`
	Thermal       ThermalConfig  `yaml:"thermal"`
	Host          HostConfig     `yaml:"host"`
}

type BusConfig struct {
	TableSize       int    `yaml:"table_size"`
	MaxSubscribers  int    `yaml:"max_subscribers"`
	PublishPolicy   string `yaml:"publish_policy"` // "drop" | "retry"
	PublishRetries  int    `yaml:"publish_retries"`
	PublishRetryUs  int    `yaml:"publish_retry_us"`
	FullQueuePolicy string `yaml:"full_queue_policy"` // "fail" | "wait"
}

type EndpointSpec struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

type Subscription struct {
	Topic     string   `yaml:"topic"`
	Endpoints []string `yaml:"endpoints"`
}

type SourceSpec struct {
	Endpoint string `yaml:"endpoint"`
	Priority uint8  `yaml:"priority"` // higher wins
}

type PowerConfig struct {
	Sources              []SourceSpec `yaml:"sources"`
	NegotiationTimeoutMs int          `yaml:"negotiation_timeout_ms"`
	RetryLimit           int          `yaml:"retry_limit"`
	MinPowerMw           uint32       `yaml:"min_power_mw"`
	MaxCurrentMa         uint16       `yaml:"max_current_ma"`
	ThermalCapMa         ThermalCaps  `yaml:"thermal_cap_ma"`
}

// ThermalCaps bounds the requested input current per thermal level. Zero
// leaves the level uncapped.
type ThermalCaps struct {
	Warm uint16 `yaml:"warm"`
	Hot  uint16 `yaml:"hot"`
}

type BatteryConfig struct {
	PollMs        int    `yaml:"poll_ms"`
	FailSafeMa    uint16 `yaml:"fail_safe_ma"`
	GaugeAddr     uint16 `yaml:"gauge_addr"`
	ChargerAddr   uint16 `yaml:"charger_addr"`
	RSNSIMicroOhm uint32 `yaml:"rsnsi_uohm"`
}

type ButtonConfig struct {
	DebounceMs  int  `yaml:"debounce_ms"`
	LongPressMs int  `yaml:"long_press_ms"`
	ActiveLow   bool `yaml:"active_low"`
}

type PlatformConfig struct {
	HeartbeatMs int `yaml:"heartbeat_ms"`
}

// ThermalConfig sets the sensor poll rate and the level thresholds in
// milli-degrees Celsius. A level is left once the temperature falls
// HysteresisMilliC below its threshold.
type ThermalConfig struct {
	PollMs           int   `yaml:"poll_ms"`
	WarmMilliC       int32 `yaml:"warm_mc"`
	HotMilliC        int32 `yaml:"hot_mc"`
	HysteresisMilliC int32 `yaml:"hysteresis_mc"`
	FaultReads       int   `yaml:"fault_reads"` // consecutive bad reads before the sensor counts as failed
}

type HostConfig struct {
	RequestTimeoutMs int             `yaml:"request_timeout_ms"`
	Transport        TransportConfig `yaml:"transport"`
}

// TransportConfig selects the host link. Type is "serial", "ws", "uart" or
// any name registered with the host service.
type TransportConfig struct {
	Type   string        `yaml:"type"`
	Serial *SerialConfig `yaml:"serial,omitempty"`
	WS     *WSConfig     `yaml:"ws,omitempty"`
	UART   *UARTConfig   `yaml:"uart,omitempty"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type WSConfig struct {
	URL string `yaml:"url"`
}

type UARTConfig struct {
	Baud  int `yaml:"baud"`
	TxPin int `yaml:"tx_pin"`
	RxPin int `yaml:"rx_pin"`
}

// Load resolves and decodes an embedded board table.
func Load(board string) (*Board, error) {
	raw, ok := EmbeddedConfigLookup(board)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no embedded config for board: " + board)
	}
	return Decode(raw)
}

// LoadFile decodes a board table from disk.
func LoadFile(path string) (*Board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Decode parses, defaults and validates a board table.
func Decode(raw []byte) (*Board, error) {
	var b Board
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Marshal renders the board back to YAML.
func (b *Board) Marshal() ([]byte, error) { return yaml.Marshal(b) }

func (b *Board) applyDefaults() {
	if b.Power.NegotiationTimeoutMs <= 0 {
		b.Power.NegotiationTimeoutMs = 500
	}
	if b.Power.RetryLimit < 0 {
		b.Power.RetryLimit = 0
	}
	if b.Battery.PollMs <= 0 {
		b.Battery.PollMs = 1000
	}
	if b.Battery.FailSafeMa == 0 {
		b.Battery.FailSafeMa = 100
	}
	if b.Button.DebounceMs <= 0 {
		b.Button.DebounceMs = 20
	}
	if b.Button.LongPressMs <= 0 {
		b.Button.LongPressMs = 4000
	}
	if b.Platform.HeartbeatMs <= 0 {
		b.Platform.HeartbeatMs = 1000
	}
	if b.Thermal.PollMs <= 0 {
		b.Thermal.PollMs = 1000
	}
	if b.Thermal.WarmMilliC == 0 && b.Thermal.HotMilliC == 0 {
		b.Thermal.WarmMilliC, b.Thermal.HotMilliC = 45000, 60000
	}
	if b.Thermal.HysteresisMilliC == 0 {
		b.Thermal.HysteresisMilliC = 2000
	}
	if b.Thermal.FaultReads <= 0 {
		b.Thermal.FaultReads = 3
	}
	if b.Host.RequestTimeoutMs <= 0 {
		b.Host.RequestTimeoutMs = 250
	}
	for i := range b.Endpoints {
		if b.Endpoints[i].Capacity == 0 {
			b.Endpoints[i].Capacity = 8
		}
	}
}

// Validate rejects tables that could never be wired.
func (b *Board) Validate() error {
	if len(b.Endpoints) == 0 {
		return errors.New("config: no endpoints")
	}
	seen := map[bus.EndpointID]bool{}
	for _, e := range b.Endpoints {
		id, ok := bus.ParseEndpoint(e.Name)
		if !ok {
			return fmt.Errorf("config: unknown endpoint %q", e.Name)
		}
		if seen[id] {
			return fmt.Errorf("config: endpoint %q listed twice", e.Name)
		}
		seen[id] = true
		if e.Capacity < 1 || e.Capacity > bus.MaxCapacity {
			return fmt.Errorf("config: endpoint %q capacity %d out of range", e.Name, e.Capacity)
		}
	}
	for _, s := range b.Subscriptions {
		if _, ok := bus.ParseTopic(s.Topic); !ok {
			return fmt.Errorf("config: unknown topic %q", s.Topic)
		}
		for _, n := range s.Endpoints {
			id, ok := bus.ParseEndpoint(n)
			if !ok || !seen[id] {
				return fmt.Errorf("config: topic %q subscriber %q is not a board endpoint", s.Topic, n)
			}
		}
	}
	if len(b.Power.Sources) > maxSources {
		return fmt.Errorf("config: %d power sources, at most %d", len(b.Power.Sources), maxSources)
	}
	srcs := map[bus.EndpointID]bool{}
	for _, s := range b.Power.Sources {
		id, ok := bus.ParseEndpoint(s.Endpoint)
		if !ok || !seen[id] {
			return fmt.Errorf("config: power source %q is not a board endpoint", s.Endpoint)
		}
		if srcs[id] {
			return fmt.Errorf("config: power source %q listed twice", s.Endpoint)
		}
		srcs[id] = true
	}
	if c := b.Power.ThermalCapMa; c.Warm > 0 && c.Hot > c.Warm {
		return fmt.Errorf("config: thermal_cap_ma hot %d above warm %d", c.Hot, c.Warm)
	}
	if t := b.Thermal; t.HotMilliC <= t.WarmMilliC || t.HysteresisMilliC < 0 {
		return fmt.Errorf("config: thermal thresholds warm %d hot %d hysteresis %d", t.WarmMilliC, t.HotMilliC, t.HysteresisMilliC)
	}
	switch b.Bus.PublishPolicy {
	case "", "drop", "retry":
	default:
		return fmt.Errorf("config: publish_policy %q", b.Bus.PublishPolicy)
	}
	switch b.Bus.FullQueuePolicy {
	case "", "fail", "wait":
	default:
		return fmt.Errorf("config: full_queue_policy %q", b.Bus.FullQueuePolicy)
	}
	return nil
}

// maxSources mirrors types.MaxSources without importing payload types here.
const maxSources = 4

// BusOptions converts the bus section.
func (b *Board) BusOptions() bus.Options {
	o := bus.Options{
		TableSize:            b.Bus.TableSize,
		MaxSubscribers:       b.Bus.MaxSubscribers,
		PublishRetries:       b.Bus.PublishRetries,
		PublishRetryInterval: time.Duration(b.Bus.PublishRetryUs) * time.Microsecond,
	}
	if b.Bus.PublishPolicy == "retry" {
		o.Publish = bus.PublishRetry
	}
	if b.Bus.FullQueuePolicy == "wait" {
		o.FullQueue = bus.FullWait
	}
	return o
}

// Capacity returns the configured mailbox capacity of id, zero if absent.
func (b *Board) Capacity(id bus.EndpointID) int {
	for _, e := range b.Endpoints {
		if eid, _ := bus.ParseEndpoint(e.Name); eid == id {
			return e.Capacity
		}
	}
	return 0
}

// Has reports whether id is part of the board.
func (b *Board) Has(id bus.EndpointID) bool { return b.Capacity(id) > 0 }

// EndpointIDs returns the board endpoints in table order.
func (b *Board) EndpointIDs() []bus.EndpointID {
	out := make([]bus.EndpointID, 0, len(b.Endpoints))
	for _, e := range b.Endpoints {
		id, _ := bus.ParseEndpoint(e.Name)
		out = append(out, id)
	}
	return out
}

// TopicsFor returns the topics id subscribes to.
func (b *Board) TopicsFor(id bus.EndpointID) []bus.Topic {
	var out []bus.Topic
	for _, s := range b.Subscriptions {
		t, _ := bus.ParseTopic(s.Topic)
		for _, n := range s.Endpoints {
			if eid, _ := bus.ParseEndpoint(n); eid == id {
				out = append(out, t)
			}
		}
	}
	return out
}

// Source is a resolved priority-table row.
type Source struct {
	Endpoint bus.EndpointID
	Priority uint8
}

// PowerSources returns the priority table in board order.
func (b *Board) PowerSources() []Source {
	out := make([]Source, 0, len(b.Power.Sources))
	for _, s := range b.Power.Sources {
		id, _ := bus.ParseEndpoint(s.Endpoint)
		out = append(out, Source{Endpoint: id, Priority: s.Priority})
	}
	return out
}

func (p PowerConfig) NegotiationTimeout() time.Duration {
	return time.Duration(p.NegotiationTimeoutMs) * time.Millisecond
}

func (c BatteryConfig) PollPeriod() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

func (c PlatformConfig) HeartbeatPeriod() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

func (c ThermalConfig) PollPeriod() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

func (c HostConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
