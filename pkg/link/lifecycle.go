package link

import (
	"net"

	"github.com/yanun0323/go-link/pkg/exception"
)

// OnRegistered captures t as the channel for every subsequent send.
func (c *Client) OnRegistered(t Transport) {
	if t == nil {
		c.errorf("register transport, err: %+v", exception.ErrLinkNilTransport)
		return
	}
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
	c.state.Store(int32(StateRegistered))
	c.logf("transport registered, remote: %s", addrString(t.RemoteAddr()))
}

// OnActive marks the link connected and opens a new failure episode.
func (c *Client) OnActive() {
	c.episode.Store(0)
	c.resetHeartbeats()
	c.connected.Store(true)
	c.state.Store(int32(StateActive))
	c.logf("transport active")
}

// OnInactive marks the link disconnected.
func (c *Client) OnInactive() {
	c.connected.Store(false)
	c.state.Store(int32(StateInactive))
	c.logf("transport inactive")
}

// OnUnregistered requests a reconnect.
func (c *Client) OnUnregistered() {
	c.state.Store(int32(StateUnregistered))
	c.logf("transport unregistered")
	c.requestReconnect()
}

// OnException logs err and closes the transport.
func (c *Client) OnException(err error) {
	c.errorf("transport exception, err: %+v", err)
	t := c.currentTransport()
	if t == nil {
		return
	}
	if closeErr := t.Close(); closeErr != nil {
		c.errorf("close transport after exception, err: %+v", closeErr)
	}
}

// requestReconnect calls OnReconnect only for the first request of an episode.
// Idle death, natural close and exceptions may all race here.
func (c *Client) requestReconnect() {
	if c.episode.Add(1) != 1 {
		c.metrics.incSuppressed()
		c.logf("reconnect already requested")
		return
	}
	c.metrics.incReconnect()
	c.logf("request reconnect")
	if c.opt.OnReconnect != nil {
		c.callHook("reconnect", c.opt.OnReconnect)
	}
}

// Disconnect disconnects the registered transport.
func (c *Client) Disconnect() error {
	t := c.currentTransport()
	if t == nil {
		return exception.ErrLinkNotRegistered
	}
	return t.Disconnect()
}

// Reconnect connects the registered transport again using its last known addresses.
func (c *Client) Reconnect() error {
	t := c.currentTransport()
	if t == nil {
		return exception.ErrLinkNotRegistered
	}
	return t.Connect(t.RemoteAddr(), t.LocalAddr())
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.String()
}
