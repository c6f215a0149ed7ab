package link

import (
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultMaxTries               = 3
	DefaultHeartbeatMissThreshold = 2
	DefaultPollInterval           = 5 * time.Second
)

// Option defines the client runtime configuration.
type Option struct {
	// MaxTries is the number of transmissions before a pending message is dropped. Optional; default 3.
	MaxTries int
	// HeartbeatMissThreshold is the number of unanswered probes that declares the connection dead. Optional; default 2.
	HeartbeatMissThreshold int
	// PollInterval is the delivery loop cadence for retries and heartbeat probes. Optional; default 5s.
	PollInterval time.Duration
	// Codec decodes inbound frames. Optional; default JSONCodec.
	Codec Codec
	// Clock drives the delivery loop and timestamps. Optional; default wall clock.
	Clock clock.Clock

	// OnReconnect fires at most once per failure episode, on a transport goroutine. It must not block. Optional; default nil.
	OnReconnect func()
	// OnEvent receives every inbound business message in receipt order. Optional; default nil.
	OnEvent func(msg Message)
	// OnLog receives every notable internal event. Optional; default writes to logs.
	OnLog func(text string)
	// OnDrop receives messages given up after MaxTries transmissions, in drop order on a goroutine of its own.
	// Drops beyond a backlog of 256 skip the hook. Optional; default nil (silent drop).
	OnDrop func(msg Message, tries int)
}

func (opt *Option) init() {
	if opt.MaxTries <= 0 {
		opt.MaxTries = DefaultMaxTries
	}

	if opt.HeartbeatMissThreshold <= 0 {
		opt.HeartbeatMissThreshold = DefaultHeartbeatMissThreshold
	}

	if opt.PollInterval <= 0 {
		opt.PollInterval = DefaultPollInterval
	}

	if opt.Codec == nil {
		opt.Codec = JSONCodec{}
	}

	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
}
