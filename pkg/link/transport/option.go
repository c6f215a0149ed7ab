package transport

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yanun0323/go-link/pkg/link"
)

const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"

	DefaultDialTimeout  = 5 * time.Second
	DefaultIdleTimeout  = 15 * time.Second
	DefaultMaxFrameSize = 1 << 20
)

// Option defines the transport runtime configuration.
type Option struct {
	// Network is "tcp" or "unix". Optional; default tcp.
	Network string
	// Address is the peer host:port, or the socket path for unix. Required.
	Address string
	// LocalAddress binds the local end of tcp connections. Optional.
	LocalAddress string
	// DialTimeout bounds each dial. Optional; default 5s.
	DialTimeout time.Duration
	// IdleTimeout is the read/write silence that triggers OnIdle. Optional; default 15s.
	IdleTimeout time.Duration
	// MaxFrameSize caps inbound frame bodies. Optional; default 1 MiB.
	MaxFrameSize int
	// Codec encodes outbound messages. Optional; default link.JSONCodec.
	Codec link.Codec
	// Clock drives idle detection and redial waits. Optional; default wall clock.
	Clock clock.Clock
}

func (opt *Option) init() {
	if opt.Network == "" {
		opt.Network = NetworkTCP
	}

	if opt.DialTimeout <= 0 {
		opt.DialTimeout = DefaultDialTimeout
	}

	if opt.IdleTimeout <= 0 {
		opt.IdleTimeout = DefaultIdleTimeout
	}

	if opt.MaxFrameSize <= 0 {
		opt.MaxFrameSize = DefaultMaxFrameSize
	}

	if opt.Codec == nil {
		opt.Codec = link.JSONCodec{}
	}

	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
}
