package link

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight link counters.
type Metrics struct {
	sent                 uint64
	sendErrors           uint64
	acked                uint64
	dropped              uint64
	probes               uint64
	heartbeatAcks        uint64
	deadVerdicts         uint64
	reconnects           uint64
	reconnectsSuppressed uint64
	events               uint64
	decodeErrors         uint64

	ackLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// MetricsSnapshot captures the current metrics values.
type MetricsSnapshot struct {
	Sent                 uint64
	SendErrors           uint64
	Acked                uint64
	Dropped              uint64
	Probes               uint64
	HeartbeatAcks        uint64
	DeadVerdicts         uint64
	Reconnects           uint64
	ReconnectsSuppressed uint64
	Events               uint64
	DecodeErrors         uint64
	AckLatency           LatencySnapshot
}

func (m *Metrics) incSent() { atomic.AddUint64(&m.sent, 1) }
func (m *Metrics) incSendError() { atomic.AddUint64(&m.sendErrors, 1) }
func (m *Metrics) incDropped(n int) { atomic.AddUint64(&m.dropped, uint64(n)) }
func (m *Metrics) incProbe() { atomic.AddUint64(&m.probes, 1) }
func (m *Metrics) incHeartbeatAck() { atomic.AddUint64(&m.heartbeatAcks, 1) }
func (m *Metrics) incDeadVerdict() { atomic.AddUint64(&m.deadVerdicts, 1) }
func (m *Metrics) incReconnect() { atomic.AddUint64(&m.reconnects, 1) }
func (m *Metrics) incSuppressed() { atomic.AddUint64(&m.reconnectsSuppressed, 1) }
func (m *Metrics) incEvent() { atomic.AddUint64(&m.events, 1) }
func (m *Metrics) incDecodeError() { atomic.AddUint64(&m.decodeErrors, 1) }
func (m *Metrics) incAcked(n int) { atomic.AddUint64(&m.acked, uint64(n)) }
func (m *Metrics) observeAck(d time.Duration) { m.ackLatency.Observe(d) }

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Sent:                 atomic.LoadUint64(&m.sent),
		SendErrors:           atomic.LoadUint64(&m.sendErrors),
		Acked:                atomic.LoadUint64(&m.acked),
		Dropped:              atomic.LoadUint64(&m.dropped),
		Probes:               atomic.LoadUint64(&m.probes),
		HeartbeatAcks:        atomic.LoadUint64(&m.heartbeatAcks),
		DeadVerdicts:         atomic.LoadUint64(&m.deadVerdicts),
		Reconnects:           atomic.LoadUint64(&m.reconnects),
		ReconnectsSuppressed: atomic.LoadUint64(&m.reconnectsSuppressed),
		Events:               atomic.LoadUint64(&m.events),
		DecodeErrors:         atomic.LoadUint64(&m.decodeErrors),
		AckLatency:           m.ackLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
