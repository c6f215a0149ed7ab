package link

// OnMessageReceived decodes an inbound frame and dispatches it.
// Decode failures are logged and leave every queue untouched.
func (c *Client) OnMessageReceived(raw []byte) {
	msg, err := c.opt.Codec.Decode(raw)
	if err != nil {
		c.metrics.incDecodeError()
		c.errorf("read message failed, err: %+v", err)
		return
	}
	c.OnMessage(msg)
}

// OnMessage dispatches a decoded inbound message.
func (c *Client) OnMessage(msg Message) {
	switch msg.Code {
	case CodePing:
		c.resetHeartbeats()
		c.metrics.incHeartbeatAck()
		c.logf("receive heartbeat response: %s", msg)
		return
	case CodeOK:
		if n := c.ack(msg.ReqID); n == 0 {
			c.logf("receive ack for unknown reqId: %s", msg.ReqID)
		}
	case CodeChat:
		c.metrics.incEvent()
		c.emitEvent(msg)
	default:
		c.logf("ignore message with unknown code %d", uint8(msg.Code))
	}
	c.logf("receive from peer: %s", msg)
}

// ack removes every pending envelope with reqID.
func (c *Client) ack(reqID string) int {
	c.mu.Lock()
	removed := c.pending.Remove(reqID)
	c.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	now := c.opt.Clock.Now()
	for _, env := range removed {
		c.metrics.observeAck(now.Sub(env.enqueuedAt))
	}
	c.metrics.incAcked(len(removed))
	return len(removed)
}

func (c *Client) emitEvent(msg Message) {
	if c.opt.OnEvent == nil {
		return
	}
	if !c.callHook("event", func() { c.opt.OnEvent(msg) }) {
		c.errorf("event handler failed, reqId: %s", msg.ReqID)
	}
}
