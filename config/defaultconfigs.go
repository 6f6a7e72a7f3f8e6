package config

// -----------------------------------------------------------------------------
// Embedded board tables
//
// Key: board name. Val: raw YAML for that board.
// -----------------------------------------------------------------------------

const cfgEVK = `
name: evk
bus:
  publish_policy: drop
  full_queue_policy: fail
endpoints:
  - {name: power, capacity: 16}
  - {name: battery, capacity: 8}
  - {name: typec0, capacity: 4}
  - {name: typec1, capacity: 4}
  - {name: fwupdate, capacity: 4}
  - {name: hid, capacity: 4}
  - {name: button, capacity: 2}
  - {name: platform, capacity: 16}
  - {name: thermal, capacity: 4}
  - {name: host, capacity: 16}
subscriptions:
  - topic: power_source
    endpoints: [power]
  - topic: power_policy
    endpoints: [battery, platform, host]
  - topic: battery
    endpoints: [platform, host]
  - topic: button
    endpoints: [platform]
  - topic: platform
    endpoints: [host]
  - topic: fwupdate
    endpoints: [host]
  - topic: hid
    endpoints: [host]
  - topic: thermal
    endpoints: [power, host]
power:
  sources:
    - {endpoint: typec0, priority: 2}
    - {endpoint: typec1, priority: 1}
  negotiation_timeout_ms: 500
  retry_limit: 2
  min_power_mw: 2500
  max_current_ma: 3000
  thermal_cap_ma: {warm: 1500, hot: 500}
battery:
  poll_ms: 1000
  fail_safe_ma: 100
  gauge_addr: 0x0b
  charger_addr: 0x68
  rsnsi_uohm: 3000
button:
  debounce_ms: 20
  long_press_ms: 4000
  active_low: true
platform:
  heartbeat_ms: 1000
thermal:
  poll_ms: 500
  warm_mc: 45000
  hot_mc: 60000
  hysteresis_mc: 2000
  fault_reads: 3
host:
  request_timeout_ms: 250
  transport:
    type: uart
    uart: {baud: 115200, tx_pin: 0, rx_pin: 1}
`

// Single-port board without keyboard or firmware update endpoint.
const cfgMini = `
name: mini
endpoints:
  - {name: power, capacity: 8}
  - {name: battery, capacity: 4}
  - {name: typec0, capacity: 4}
  - {name: button, capacity: 2}
  - {name: platform, capacity: 8}
  - {name: host, capacity: 8}
subscriptions:
  - {topic: power_source, endpoints: [power]}
  - {topic: power_policy, endpoints: [battery, platform, host]}
  - {topic: battery, endpoints: [platform]}
  - {topic: button, endpoints: [platform]}
  - {topic: platform, endpoints: [host]}
power:
  sources:
    - {endpoint: typec0, priority: 1}
  negotiation_timeout_ms: 300
  retry_limit: 1
  min_power_mw: 2500
  max_current_ma: 1500
battery:
  gauge_addr: 0x0b
  charger_addr: 0x68
  rsnsi_uohm: 3000
host:
  transport:
    type: serial
    serial: {port: /dev/ttyACM0, baud: 115200}
`

var embeddedConfigs = map[string][]byte{
	"evk":  []byte(cfgEVK),
	"mini": []byte(cfgMini),
}
