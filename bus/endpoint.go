package bus

// EndpointID names one logical service on the bus. The universe is closed:
// every valid id is one of the constants below. The high bit marks
// host-facing (external) endpoints.
type EndpointID uint8

const externalBit EndpointID = 0x80

const (
	EndpointNone EndpointID = 0

	// Internal framework endpoints.
	EPPower    EndpointID = 0x01
	EPBattery  EndpointID = 0x02
	EPTypeC0   EndpointID = 0x03
	EPTypeC1   EndpointID = 0x04
	EPFwUpdate EndpointID = 0x05
	EPHID      EndpointID = 0x06
	EPButton   EndpointID = 0x07
	EPPlatform EndpointID = 0x08
	EPDebug    EndpointID = 0x09
	EPThermal  EndpointID = 0x0A

	// External endpoints.
	EPHost EndpointID = externalBit | 0x01

	// Broadcast is the destination of published notifications.
	Broadcast EndpointID = 0xFF
)

var endpointNames = [...]struct {
	id   EndpointID
	name string
}{
	{EPPower, "power"},
	{EPBattery, "battery"},
	{EPTypeC0, "typec0"},
	{EPTypeC1, "typec1"},
	{EPFwUpdate, "fwupdate"},
	{EPHID, "hid"},
	{EPButton, "button"},
	{EPPlatform, "platform"},
	{EPDebug, "debug"},
	{EPThermal, "thermal"},
	{EPHost, "host"},
}

// External reports whether id is host-facing.
func (id EndpointID) External() bool {
	return id != Broadcast && id&externalBit != 0
}

// Valid reports whether id belongs to the known universe.
func (id EndpointID) Valid() bool {
	for _, e := range endpointNames {
		if e.id == id {
			return true
		}
	}
	return false
}

func (id EndpointID) String() string {
	switch id {
	case EndpointNone:
		return "none"
	case Broadcast:
		return "broadcast"
	}
	for _, e := range endpointNames {
		if e.id == id {
			return e.name
		}
	}
	return "ep?"
}

// ParseEndpoint maps a static-table name to its id.
func ParseEndpoint(name string) (EndpointID, bool) {
	for _, e := range endpointNames {
		if e.name == name {
			return e.id, true
		}
	}
	return EndpointNone, false
}
