package actor

import "fmt"

// Type is the message's 8-bit type tag. Values are stable across the
// wire and across the command channel's STAT output.
type Type uint8

const (
	TypeText     Type = 0
	TypeResponse Type = 1
	TypeMulticast Type = 2 // reserved
	TypeClient   Type = 3
	TypeSystem   Type = 4
	TypeHarbor   Type = 5
	TypeSocket   Type = 6
	TypeError    Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeResponse:
		return "response"
	case TypeMulticast:
		return "multicast"
	case TypeClient:
		return "client"
	case TypeSystem:
		return "system"
	case TypeHarbor:
		return "harbor"
	case TypeSocket:
		return "socket"
	case TypeError:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// MaxPayloadSize is the hard payload limit implied by packing the type
// tag into the high byte of a 32-bit size word: a payload
// cannot exceed 16 MiB minus one byte of header room.
const MaxPayloadSize = 1<<24 - 1

// SendFlags carry high bits of the caller-supplied type that never reach
// the wire; they only influence how Send treats the payload and session.
type SendFlags uint8

const (
	// FlagDontCopy transfers ownership of Payload to the runtime instead
	// of copying it. The caller must not touch Payload again after Send.
	FlagDontCopy SendFlags = 1 << iota
	// FlagAllocSession asks the runtime to allocate a new session instead
	// of using the caller-supplied one.
	FlagAllocSession
)

// Message is one entry in a service's mailbox.
type Message struct {
	Source  Handle // sender; InvalidHandle for system-originated messages
	Session int32  // positive, sender- or runtime-allocated; 0 for none
	Type    Type
	Payload []byte
}

// Size returns the payload length, mirroring the original "type and size
// share one 32-bit word" wire framing without actually packing them — Go
// messages carry Type and Payload as separate fields, but Size must still
// respect MaxPayloadSize.
func (m Message) Size() int {
	return len(m.Payload)
}

// ErrPayloadTooLarge is returned by Send when Payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = fmt.Errorf("actor: payload exceeds %d bytes", MaxPayloadSize)
