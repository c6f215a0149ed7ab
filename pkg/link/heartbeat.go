package link

// OnIdle handles the transport idle notification.
func (c *Client) OnIdle() {
	c.logf("read/write idle")
	c.probe()
}

// probe sends a heartbeat, or declares the connection dead when too many probes went unanswered.
// The threshold check and the probe bookkeeping share one lock hold.
func (c *Client) probe() {
	c.mu.Lock()
	t := c.transport
	if t == nil {
		c.mu.Unlock()
		c.logf("not connected, skip heartbeat")
		return
	}

	if missed := len(c.heartbeats); missed >= c.opt.HeartbeatMissThreshold {
		c.heartbeats = c.heartbeats[:0]
		c.mu.Unlock()

		c.metrics.incDeadVerdict()
		c.logf("%d heartbeat(s) without response, reconnect to peer", missed)
		if err := t.Close(); err != nil {
			c.errorf("close dead connection, err: %+v", err)
		}
		c.requestReconnect()
		return
	}

	ping := NewMessage(CodePing, nil)
	c.heartbeats = append(c.heartbeats, ping.ReqID)
	c.mu.Unlock()

	c.metrics.incProbe()
	if err := t.Send(ping); err != nil {
		c.metrics.incSendError()
		c.errorf("send heartbeat failed, err: %+v", err)
		return
	}
	c.logf("send heartbeat: %s", ping)
}

// resetHeartbeats forgets every outstanding probe and returns how many there were.
func (c *Client) resetHeartbeats() int {
	c.mu.Lock()
	n := len(c.heartbeats)
	c.heartbeats = c.heartbeats[:0]
	c.mu.Unlock()
	return n
}
