package link

import "net"

// Transport sends messages to the peer and controls the connection.
// Send is fire-and-forget: a nil error does not mean the peer got the message.
type Transport interface {
	Send(msg Message) error
	Close() error
	Connect(remote, local net.Addr) error
	Disconnect() error
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// Events receives lifecycle notifications and inbound frames from a transport.
// Implementations must tolerate calls from arbitrary goroutines.
type Events interface {
	OnRegistered(t Transport)
	OnActive()
	OnInactive()
	OnUnregistered()
	OnException(err error)
	OnIdle()
	OnMessageReceived(raw []byte)
}

// Codec converts messages to and from their wire body.
// Encode should append into dst and return the extended slice.
type Codec interface {
	Encode(dst []byte, msg Message) ([]byte, error)
	Decode(src []byte) (Message, error)
}
