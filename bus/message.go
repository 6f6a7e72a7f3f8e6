package bus

// Kind classifies a message.
type Kind uint8

const (
	KindNotification Kind = iota
	KindRequest
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "notification"
	}
}

// Payload is implemented by every message body. Bodies are plain value
// structs of bounded size: variable data is carried in fixed arrays with an
// explicit length, never in slices, maps or pointers. The discriminant is
// stable and doubles as the host wire tag.
type Payload interface {
	Discriminant() uint16
}

// Message is the routing envelope. It is copied by value into mailboxes.
type Message struct {
	From    EndpointID
	To      EndpointID // Broadcast for published notifications
	Topic   Topic      // set on published notifications
	Kind    Kind
	Seq     uint32 // request/response correlation, zero otherwise
	Payload Payload
}

// IsRequest reports whether the sender is waiting on a reply.
func (m Message) IsRequest() bool { return m.Kind == KindRequest }
