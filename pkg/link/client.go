package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/logs"

	"github.com/yanun0323/go-link/pkg/exception"
)

var _ Events = (*Client)(nil)

// dropQueueSize bounds the drops waiting for Option.OnDrop.
const dropQueueSize = 256

/*
func (c *Client) Close()
func (c *Client) Connected() bool
func (c *Client) Disconnect() error
func (c *Client) Enqueue(msg Message)
func (c *Client) Metrics() MetricsSnapshot
func (c *Client) OnActive()
func (c *Client) OnException(err error)
func (c *Client) OnIdle()
func (c *Client) OnInactive()
func (c *Client) OnMessage(msg Message)
func (c *Client) OnMessageReceived(raw []byte)
func (c *Client) OnRegistered(t Transport)
func (c *Client) OnUnregistered()
func (c *Client) OutstandingHeartbeats() int
func (c *Client) Pending() []Message
func (c *Client) PendingLen() int
func (c *Client) Reconnect() error
func (c *Client) Send(msg Message)
func (c *Client) StartLoopOnce() error
func (c *Client) State() State
*/

// Client keeps outbound messages until the peer acknowledges them,
// probes the peer with heartbeats and asks for a reconnect once per failure episode.
type Client struct {
	opt     Option
	metrics Metrics

	// mu guards pending, heartbeats, transport and the loop start/stop bookkeeping.
	mu         sync.Mutex
	pending    pendingQueue
	heartbeats []string
	transport  Transport
	closed     bool

	connected atomic.Bool
	state     atomic.Int32
	episode   atomic.Int32
	running   atomic.Bool

	drops     chan drop
	dropsDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a client. The delivery loop starts on the first Send or StartLoopOnce.
func New(option ...Option) *Client {
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}

	opt.init()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opt:    opt,
		ctx:    ctx,
		cancel: cancel,
	}

	if opt.OnDrop != nil {
		c.drops = make(chan drop, dropQueueSize)
		c.dropsDone = make(chan struct{})
		go c.deliverDrops()
	}
	return c
}

// Enqueue appends msg to the pending queue.
func (c *Client) Enqueue(msg Message) {
	env := &envelope{msg: msg, enqueuedAt: c.opt.Clock.Now()}
	c.mu.Lock()
	c.pending.Push(env)
	c.mu.Unlock()
}

// Send enqueues msg and makes sure the delivery loop runs.
// Without a registered transport the message stays queued until one is registered and Send or StartLoopOnce is called.
func (c *Client) Send(msg Message) {
	c.Enqueue(msg)
	if c.currentTransport() == nil {
		c.logf("not connected, message queued: %s", msg)
		return
	}
	if err := c.StartLoopOnce(); err != nil {
		c.errorf("start delivery loop, err: %+v", err)
	}
}

// StartLoopOnce starts the delivery loop unless it is already running.
func (c *Client) StartLoopOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return exception.ErrLinkClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(c.ctx)
	}()
	return nil
}

// Close stops the delivery loop and waits for it to exit.
// Drops already queued for OnDrop are delivered first. It does not close the transport.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if c.drops != nil {
		close(c.drops)
		<-c.dropsDone
	}
}

func (c *Client) run(ctx context.Context) {
	ticker := c.opt.Clock.Ticker(c.opt.PollInterval)
	defer ticker.Stop()

	for {
		c.cycle()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle runs one delivery loop iteration: sweep exhausted envelopes,
// then send the oldest pending message or probe the peer when nothing is pending.
func (c *Client) cycle() {
	defer func() {
		if r := recover(); r != nil {
			c.errorf("delivery cycle panic: %v", r)
		}
	}()

	c.mu.Lock()
	dropped := c.pending.Sweep(c.opt.MaxTries)
	t := c.transport
	env := c.pending.Front()
	var (
		msg   Message
		tries int
	)
	if env != nil && t != nil {
		env.tries++
		msg, tries = env.msg, env.tries
	}
	c.mu.Unlock()

	c.giveUp(dropped)

	if env == nil {
		c.probe()
		return
	}

	if t == nil {
		c.logf("not connected, %d message(s) pending", c.PendingLen())
		return
	}

	c.metrics.incSent()
	if err := t.Send(msg); err != nil {
		c.metrics.incSendError()
		c.errorf("send to peer failed, reqId: %s, err: %+v", msg.ReqID, err)
		return
	}
	c.logf("send to peer (%d/%d): %s", tries, c.opt.MaxTries, msg)
}

func (c *Client) giveUp(dropped []*envelope) {
	if len(dropped) == 0 {
		return
	}
	c.metrics.incDropped(len(dropped))
	for _, env := range dropped {
		c.logf("give up after %d tries: %s", env.tries, env.msg)
		if c.drops == nil {
			continue
		}
		select {
		case c.drops <- drop{msg: env.msg, tries: env.tries}:
		default:
			c.errorf("drop queue full, skip drop hook: %s", env.msg)
		}
	}
}

type drop struct {
	msg   Message
	tries int
}

// deliverDrops calls OnDrop in drop order, off the delivery loop, until Close.
func (c *Client) deliverDrops() {
	defer close(c.dropsDone)
	for d := range c.drops {
		c.callHook("drop", func() { c.opt.OnDrop(d.msg, d.tries) })
	}
}

// callHook runs a consumer hook and reports whether it returned normally.
// A panicking hook is logged to logs, never to OnLog.
func (c *Client) callHook(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("%s hook panic: %v", name, r)
			ok = false
		}
	}()
	fn()
	return true
}

func (c *Client) currentTransport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// Pending returns the queued messages in delivery order.
func (c *Client) Pending() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Snapshot()
}

// PendingLen returns the number of queued messages.
func (c *Client) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// OutstandingHeartbeats returns the number of probes sent since the last heartbeat ack.
func (c *Client) OutstandingHeartbeats() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.heartbeats)
}

// Connected reports whether the transport is active.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// State returns the last lifecycle state reported by the transport.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Metrics returns a snapshot of the link counters.
func (c *Client) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *Client) logf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if c.writeLog(text) {
		return
	}
	logs.Info(text)
}

func (c *Client) errorf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if c.writeLog(text) {
		return
	}
	logs.Errorf("%s", text)
}

// writeLog hands text to OnLog. It returns false when there is no OnLog or it panicked.
func (c *Client) writeLog(text string) bool {
	if c.opt.OnLog == nil {
		return false
	}
	return c.callHook("log", func() { c.opt.OnLog(text) })
}
