package link

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Code classifies a message on the link.
type Code uint8

const (
	// CodePing is a heartbeat probe when sent and a heartbeat ack when received.
	CodePing Code = iota + 1
	// CodeOK acknowledges the business message carrying the same ReqID.
	CodeOK
	// CodeChat is a business message.
	CodeChat
)

func (c Code) String() string {
	switch c {
	case CodePing:
		return "Ping"
	case CodeOK:
		return "OK"
	case CodeChat:
		return "Chat"
	default:
		return "Unknown"
	}
}

// IsAvailable reports whether c is a known code.
func (c Code) IsAvailable() bool {
	return c >= CodePing && c <= CodeChat
}

// Message is the unit exchanged with the peer.
// ReqID correlates a message with its acknowledgment.
type Message struct {
	Code  Code   `json:"code"`
	ReqID string `json:"reqId"`
	Body  []byte `json:"body,omitempty"`
}

// NewReqID returns a fresh request id.
func NewReqID() string {
	return uuid.NewString()
}

// NewMessage builds a message with a fresh request id.
func NewMessage(code Code, body []byte) Message {
	return Message{Code: code, ReqID: NewReqID(), Body: body}
}

// String returns the JSON form of the message.
func (m Message) String() string {
	s, err := sonic.MarshalString(m)
	if err != nil {
		return "{code:" + m.Code.String() + " reqId:" + m.ReqID + "}"
	}
	return s
}

// envelope is a message waiting for its acknowledgment.
type envelope struct {
	msg        Message
	tries      int
	enqueuedAt time.Time
}

// State is the lifecycle state of the underlying transport.
type State int32

const (
	StateUnregistered State = iota
	StateRegistered
	StateActive
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "Unregistered"
	case StateRegistered:
		return "Registered"
	case StateActive:
		return "Active"
	case StateInactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}
