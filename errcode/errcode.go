package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Registration phase. These indicate a static wiring defect.
	DuplicateEndpoint         Code = "duplicate_endpoint"
	RegistryFull              Code = "registry_full"
	RegistryFrozen            Code = "registry_frozen"
	SubscriptionLimitExceeded Code = "subscription_limit_exceeded"

	// Runtime delivery.
	UnknownEndpoint Code = "unknown_endpoint"
	MailboxFull     Code = "mailbox_full"
	Timeout         Code = "timeout"
	Cancelled       Code = "cancelled"
	NoWaiter        Code = "no_waiter"
	Busy            Code = "busy"

	// Service level.
	NegotiationFailed Code = "negotiation_failed"
	InvalidPayload    Code = "invalid_payload"
	InvalidTopic      Code = "invalid_topic"
	InvalidState      Code = "invalid_state"
	InvalidParams     Code = "invalid_params"
	Unsupported       Code = "unsupported"
	BadFrame          Code = "bad_frame"
	DeviceIO          Code = "device_io"

	Error Code = "error" // generic fallback
)

// Fatal reports whether c can only arise from a static configuration defect.
// Boot must abort on these rather than run a partially wired system.
func Fatal(c Code) bool {
	switch c {
	case DuplicateEndpoint, RegistryFull, RegistryFrozen, SubscriptionLimitExceeded:
		return true
	}
	return false
}

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Timeout) match a wrapped code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap annotates a code with the failing operation.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	if c := Of(err); c != Error {
		return c
	}
	return DeviceIO
}
