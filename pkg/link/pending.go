package link

// pendingQueue holds envelopes in enqueue order.
// It is not safe for concurrent use; the client mutex guards it.
type pendingQueue struct {
	items []*envelope
}

func (q *pendingQueue) Push(env *envelope) {
	q.items = append(q.items, env)
}

// Sweep removes every envelope that reached maxTries and returns them.
func (q *pendingQueue) Sweep(maxTries int) []*envelope {
	var dropped []*envelope
	kept := q.items[:0]
	for _, env := range q.items {
		if env.tries >= maxTries {
			dropped = append(dropped, env)
			continue
		}
		kept = append(kept, env)
	}
	clearTail(q.items, len(kept))
	q.items = kept
	return dropped
}

// Front returns the oldest envelope, or nil when empty.
func (q *pendingQueue) Front() *envelope {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Remove deletes every envelope carrying reqID and returns them.
func (q *pendingQueue) Remove(reqID string) []*envelope {
	var removed []*envelope
	kept := q.items[:0]
	for _, env := range q.items {
		if env.msg.ReqID == reqID {
			removed = append(removed, env)
			continue
		}
		kept = append(kept, env)
	}
	clearTail(q.items, len(kept))
	q.items = kept
	return removed
}

func (q *pendingQueue) Len() int {
	return len(q.items)
}

// Snapshot copies the queued messages in order.
func (q *pendingQueue) Snapshot() []Message {
	out := make([]Message, 0, len(q.items))
	for _, env := range q.items {
		out = append(out, env.msg)
	}
	return out
}

// clearTail nils out slots past n so removed envelopes can be collected.
func clearTail(items []*envelope, n int) {
	for i := n; i < len(items); i++ {
		items[i] = nil
	}
}
