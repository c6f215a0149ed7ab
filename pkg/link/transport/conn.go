package transport

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/yanun0323/go-link/pkg/exception"
	"github.com/yanun0323/go-link/pkg/link"
	"github.com/yanun0323/go-link/pkg/uds"
)

var _ link.Transport = (*Conn)(nil)

// Conn is a length-prefixed stream connection that reports its lifecycle to a link.Events.
//
// Every successful dial fires OnRegistered and OnActive, and the end of that
// connection fires OnInactive and OnUnregistered exactly once.
type Conn struct {
	opt    Option
	events link.Events

	// mu guards sess and the remembered addresses.
	mu     sync.Mutex
	sess   *session
	remote net.Addr
	local  net.Addr

	writeMu sync.Mutex
	wbuf    []byte
}

// New builds a disconnected Conn for the configured peer.
func New(events link.Events, opt Option) (*Conn, error) {
	if events == nil {
		return nil, exception.ErrLinkNilEvents
	}

	opt.init()

	if opt.Address == "" {
		return nil, exception.ErrLinkEmptyAddress
	}

	remote, err := resolve(opt.Network, opt.Address)
	if err != nil {
		return nil, errors.Wrap(err, "resolve remote address").With("address", opt.Address)
	}

	var local net.Addr
	if opt.LocalAddress != "" && opt.Network == NetworkTCP {
		local, err = resolve(opt.Network, opt.LocalAddress)
		if err != nil {
			return nil, errors.Wrap(err, "resolve local address").With("address", opt.LocalAddress)
		}
	}

	return &Conn{
		opt:    opt,
		events: events,
		remote: remote,
		local:  local,
	}, nil
}

func resolve(network, address string) (net.Addr, error) {
	switch network {
	case NetworkTCP:
		addr, err := net.ResolveTCPAddr(network, address)
		if err != nil {
			return nil, err
		}
		return addr, nil
	case NetworkUnix:
		return &net.UnixAddr{Name: address, Net: NetworkUnix}, nil
	default:
		return nil, exception.ErrLinkUnknownNetwork
	}
}

// Dial connects to the remembered peer address.
func (c *Conn) Dial(ctx context.Context) error {
	c.mu.Lock()
	remote, local := c.remote, c.local
	c.mu.Unlock()
	return c.dial(ctx, remote, local)
}

// Connect connects to remote, binding local when it is not nil.
// Both addresses are remembered for later dials.
func (c *Conn) Connect(remote, local net.Addr) error {
	if remote == nil {
		c.mu.Lock()
		remote = c.remote
		c.mu.Unlock()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opt.DialTimeout)
	defer cancel()
	return c.dial(ctx, remote, local)
}

// Redial dials until it succeeds, ctx is done or backoff.MaxAttempts dials failed,
// waiting backoff.Next between attempts.
// It waits for a closing connection to finish its teardown, so it must not run
// synchronously inside an Events callback; start it on its own goroutine.
func (c *Conn) Redial(ctx context.Context, backoff Backoff) error {
	for attempt := 1; ; attempt++ {
		err := c.Dial(ctx)
		if err == nil || err == exception.ErrLinkConnected {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if backoff.Exhausted(attempt) {
			logs.Errorf("redial gave up after %d attempts, err: %+v", attempt, err)
			return errors.Wrap(exception.ErrLinkRedialExhausted, err.Error()).With("attempts", attempt)
		}

		wait := backoff.Next(attempt)
		logs.Errorf("redial attempt %d failed, retry in %s, err: %+v", attempt, wait, err)

		timer := c.opt.Clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Conn) dial(ctx context.Context, remote, local net.Addr) error {
	if err := c.awaitTeardown(ctx); err != nil {
		return err
	}

	conn, err := c.dialConn(ctx, remote, local)
	if err != nil {
		return errors.Wrap(err, "dial").With("remote", remote.String())
	}

	s := newSession(conn, c.opt.Clock.Now().UnixNano())

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return exception.ErrLinkConnected
	}
	c.sess = s
	c.remote = remote
	c.local = local
	c.mu.Unlock()

	logs.Infof("connected to %s via %s", remote, conn.LocalAddr())

	c.events.OnRegistered(c)
	c.events.OnActive()

	go c.readLoop(s)
	go c.watchIdle(s)
	return nil
}

// awaitTeardown waits until a closing connection has reported OnUnregistered.
func (c *Conn) awaitTeardown(ctx context.Context) error {
	s := c.session()
	if s == nil {
		return nil
	}
	if !s.closing() {
		return exception.ErrLinkConnected
	}
	select {
	case <-s.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) dialConn(ctx context.Context, remote, local net.Addr) (net.Conn, error) {
	if addr, ok := remote.(*net.UnixAddr); ok {
		client, err := uds.NewClient(addr.Name, c.opt.DialTimeout)
		if err != nil {
			return nil, err
		}
		conn, err := client.DialContext(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	d := net.Dialer{Timeout: c.opt.DialTimeout, LocalAddr: local}
	return d.DialContext(ctx, remote.Network(), remote.String())
}

// readLoop delivers inbound frames until the connection ends.
// raw passed to OnMessageReceived is only valid during the call.
func (c *Conn) readLoop(s *session) {
	defer c.teardown(s)

	r := bufio.NewReader(s.conn)
	var buf []byte
	for {
		var err error
		buf, err = ReadFrame(r, buf, c.opt.MaxFrameSize)
		if err != nil {
			if !s.closedLocally() && !stderrors.Is(err, io.EOF) {
				c.events.OnException(err)
			}
			return
		}
		s.touch(c.opt.Clock.Now().UnixNano())
		c.events.OnMessageReceived(buf)
	}
}

// teardown reports the end of s. The session stays current until both events
// are delivered so a redial cannot interleave with them.
func (c *Conn) teardown(s *session) {
	_ = s.close(false)

	logs.Infof("connection to %s closed", s.conn.RemoteAddr())

	c.events.OnInactive()
	c.events.OnUnregistered()

	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
	close(s.finished)
}

// watchIdle fires OnIdle once per IdleTimeout window without reads or writes.
func (c *Conn) watchIdle(s *session) {
	timeout := c.opt.IdleTimeout
	timer := c.opt.Clock.Timer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-timer.C:
		}

		now := c.opt.Clock.Now().UnixNano()
		idle := durationSince(s.lastActive(), now)
		if idle < timeout {
			timer.Reset(timeout - idle)
			continue
		}

		s.touch(now)
		c.events.OnIdle()
		timer.Reset(timeout)
	}
}

// Send encodes msg into one frame and writes it.
func (c *Conn) Send(msg link.Message) error {
	s := c.session()
	if s == nil || s.closing() {
		return exception.ErrLinkNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	frame, err := AppendFrame(c.wbuf[:0], c.opt.Codec, msg)
	if err != nil {
		return errors.Wrap(err, "encode message").With("reqId", msg.ReqID)
	}
	c.wbuf = frame

	if size := len(frame) - headerSize; size > c.opt.MaxFrameSize {
		return errors.Wrap(exception.ErrLinkFrameTooLarge, "write frame").With("size", size)
	}

	if _, err := s.conn.Write(frame); err != nil {
		return errors.Wrap(err, "write frame").With("reqId", msg.ReqID)
	}
	s.touch(c.opt.Clock.Now().UnixNano())
	return nil
}

// Close closes the current connection. Remembered addresses stay for later dials.
func (c *Conn) Close() error {
	s := c.session()
	if s == nil {
		return nil
	}
	return s.close(true)
}

// Disconnect closes the current connection on request of the application.
func (c *Conn) Disconnect() error {
	logs.Infof("disconnect from %s", c.RemoteAddr())
	return c.Close()
}

// Connected reports whether a connection is open.
func (c *Conn) Connected() bool {
	s := c.session()
	return s != nil && !s.closing()
}

// RemoteAddr returns the remembered peer address.
func (c *Conn) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// LocalAddr returns the remembered local bind address, nil when the system picks one.
func (c *Conn) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Conn) session() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func durationSince(then, now int64) time.Duration {
	if now <= then {
		return 0
	}
	return time.Duration(now - then)
}

// session is one open connection.
type session struct {
	conn     net.Conn
	done     chan struct{}
	finished chan struct{}

	once   sync.Once
	local  atomic.Bool
	active atomic.Int64
}

func newSession(conn net.Conn, now int64) *session {
	s := &session{conn: conn, done: make(chan struct{}), finished: make(chan struct{})}
	s.active.Store(now)
	return s
}

func (s *session) touch(now int64) {
	s.active.Store(now)
}

func (s *session) lastActive() int64 {
	return s.active.Load()
}

func (s *session) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) closedLocally() bool {
	return s.local.Load()
}

func (s *session) close(local bool) error {
	var err error
	s.once.Do(func() {
		if local {
			s.local.Store(true)
		}
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
