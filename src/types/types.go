package types

import "encoding/json"

// Opcode identifies the kind of frame carried by an Envelope.
type Opcode int

// Protocol opcodes.
const (
	OpEvent    Opcode = 0
	OpPing     Opcode = 1
	OpPong     Opcode = 2
	OpIdentify Opcode = 3
	OpReady    Opcode = 4
)

// Diagnostic event types sent in response to client protocol misuse.
// Both are delivered as ordinary Event envelopes; the connection stays open.
const (
	EventTypeIdentifyDuplicate = "internal/identify-duplicate"
	EventTypeUnknownOpcode     = "internal/unknown-opcode"
)

// StatusOnline is the login status reported in the Ready body.
const StatusOnline = 1

// Envelope is the uniform outbound frame: an operation tag plus an optional body.
type Envelope struct {
	Op   Opcode `json:"op"`
	Body any    `json:"body,omitempty"`
}

// Frame is an inbound client frame. The body stays raw until the op is known.
type Frame struct {
	Op   Opcode          `json:"op"`
	Body json.RawMessage `json:"body,omitempty"`
}

// IdentifyBody is the payload of an Identify frame.
type IdentifyBody struct {
	Token string `json:"token,omitempty"`
}

// Login describes the gateway's own account, reported in the Ready body.
type Login struct {
	Platform string `json:"platform"`
	SelfID   string `json:"self_id"`
	Status   int    `json:"status"`
}

// ReadyBody is the payload of the Ready frame sent after authorization.
type ReadyBody struct {
	Logins []Login `json:"logins"`
}

// EventBody is the body of a dispatched Event envelope. The dispatcher
// stamps id, platform, self_id and timestamp; the transform supplies the
// type discriminator and any event-specific fields.
type EventBody map[string]any

// Clone returns a shallow copy so each (event, connection) pair carries its own id.
func (b EventBody) Clone() EventBody {
	out := make(EventBody, len(b)+4)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// InternalMessage is a message taken off the internal bus, before it is
// transformed into outbound event bodies.
type InternalMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Transformer turns an internal message into zero or more outbound event
// bodies. Implementations may block; the dispatcher invokes them off the
// caller's goroutine.
type Transformer func(msg InternalMessage) ([]EventBody, error)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	CloseStatus(code int, reason string) error
	Close() error
}
