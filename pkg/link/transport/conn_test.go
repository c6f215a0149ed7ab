package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"github.com/yanun0323/go-link/pkg/exception"
	"github.com/yanun0323/go-link/pkg/link"
	"github.com/yanun0323/go-link/pkg/uds"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error

	transport    link.Transport
	idle         chan struct{}
	received     chan []byte
	unregistered chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		idle:         make(chan struct{}, 16),
		received:     make(chan []byte, 16),
		unregistered: make(chan struct{}, 16),
	}
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) OnRegistered(t link.Transport) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
	r.add("registered")
}

func (r *recorder) OnActive()   { r.add("active") }
func (r *recorder) OnInactive() { r.add("inactive") }

func (r *recorder) OnUnregistered() {
	r.add("unregistered")
	r.unregistered <- struct{}{}
}

func (r *recorder) OnException(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.add("exception")
}

func (r *recorder) OnIdle() {
	select {
	case r.idle <- struct{}{}:
	default:
	}
}

func (r *recorder) OnMessageReceived(raw []byte) {
	r.received <- append([]byte(nil), raw...)
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("timeout waiting for %s", what)
	}
}

func listenTCP(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func acceptOne(t *testing.T, ln net.Listener) <-chan net.Conn {
	t.Helper()
	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(ch)
			return
		}
		t.Cleanup(func() { _ = conn.Close() })
		ch <- conn
	}()
	return ch
}

func writeTestFrame(t *testing.T, conn net.Conn, body []byte) {
	t.Helper()
	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[headerSize:], body)
	_, err := conn.Write(frame)
	require.NoError(t, err)
}

func TestNewValidatesOption(t *testing.T) {
	_, err := New(nil, Option{Address: "127.0.0.1:1"})
	assert.Equal(t, exception.ErrLinkNilEvents, err)

	_, err = New(newRecorder(), Option{})
	assert.Equal(t, exception.ErrLinkEmptyAddress, err)

	_, err = New(newRecorder(), Option{Network: "udp", Address: "127.0.0.1:1"})
	assert.Error(t, err)

	c, err := New(newRecorder(), Option{Address: "127.0.0.1:7600"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7600", c.RemoteAddr().String())
	assert.Nil(t, c.LocalAddr())
	assert.Equal(t, DefaultIdleTimeout, c.opt.IdleTimeout)
	assert.Equal(t, DefaultMaxFrameSize, c.opt.MaxFrameSize)
}

func TestSendWithoutConnection(t *testing.T) {
	c, err := New(newRecorder(), Option{Address: "127.0.0.1:7600"})
	require.NoError(t, err)
	assert.Equal(t, exception.ErrLinkNotConnected, c.Send(link.NewMessage(link.CodeChat, nil)))
	assert.NoError(t, c.Close())
}

func TestConnExchangesFrames(t *testing.T) {
	ln := listenTCP(t)
	accepted := acceptOne(t, ln)
	rec := newRecorder()

	c, err := New(rec, Option{Address: ln.Addr().String()})
	require.NoError(t, err)
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()

	assert.Equal(t, []string{"registered", "active"}, rec.Events())
	assert.True(t, c.Connected())
	assert.Equal(t, exception.ErrLinkConnected, c.Dial(context.Background()))

	peer := <-accepted
	require.NotNil(t, peer)

	msg := link.Message{Code: link.CodeChat, ReqID: "r1", Body: []byte("hello")}
	require.NoError(t, c.Send(msg))

	body, err := ReadFrame(bufio.NewReader(peer), nil, DefaultMaxFrameSize)
	require.NoError(t, err)
	got, err := link.JSONCodec{}.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	writeTestFrame(t, peer, []byte(`{"code":2,"reqId":"r1"}`))
	select {
	case raw := <-rec.received:
		assert.JSONEq(t, `{"code":2,"reqId":"r1"}`, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestPeerCloseEndsConnectionOnce(t *testing.T) {
	ln := listenTCP(t)
	accepted := acceptOne(t, ln)
	rec := newRecorder()

	c, err := New(rec, Option{Address: ln.Addr().String()})
	require.NoError(t, err)
	require.NoError(t, c.Dial(context.Background()))

	peer := <-accepted
	require.NoError(t, peer.Close())

	waitSignal(t, rec.unregistered, "unregistered")
	assert.Equal(t, []string{"registered", "active", "inactive", "unregistered"}, rec.Events())
	assert.Empty(t, rec.Errs(), "graceful close is not an exception")
	assert.False(t, c.Connected())
	assert.Equal(t, exception.ErrLinkNotConnected, c.Send(link.NewMessage(link.CodeChat, nil)))
}

func TestLocalCloseIsNotAnException(t *testing.T) {
	ln := listenTCP(t)
	accepted := acceptOne(t, ln)
	rec := newRecorder()

	c, err := New(rec, Option{Address: ln.Addr().String()})
	require.NoError(t, err)
	require.NoError(t, c.Dial(context.Background()))
	<-accepted

	require.NoError(t, c.Disconnect())
	waitSignal(t, rec.unregistered, "unregistered")
	assert.NoError(t, c.Close())
	assert.Empty(t, rec.Errs())
	assert.Equal(t, []string{"registered", "active", "inactive", "unregistered"}, rec.Events())
}

func TestOversizedFrameRaisesException(t *testing.T) {
	ln := listenTCP(t)
	accepted := acceptOne(t, ln)
	rec := newRecorder()

	c, err := New(rec, Option{Address: ln.Addr().String(), MaxFrameSize: 8})
	require.NoError(t, err)
	require.NoError(t, c.Dial(context.Background()))

	peer := <-accepted
	writeTestFrame(t, peer, []byte(`{"code":2,"reqId":"too-long"}`))

	waitSignal(t, rec.unregistered, "unregistered")
	require.Len(t, rec.Errs(), 1)
	assert.Equal(t, []string{"registered", "active", "exception", "inactive", "unregistered"}, rec.Events())

	assert.Error(t, c.Send(link.Message{Code: link.CodeChat, ReqID: "r1"}))
}

func TestIdleWatcherFiresOnSilence(t *testing.T) {
	ln := listenTCP(t)
	accepted := acceptOne(t, ln)
	rec := newRecorder()

	c, err := New(rec, Option{Address: ln.Addr().String(), IdleTimeout: 30 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()
	<-accepted

	waitSignal(t, rec.idle, "first idle")
	waitSignal(t, rec.idle, "second idle")
}

func TestUnixSocketConn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.sock")
	server, err := uds.NewServer(path)
	require.NoError(t, err)
	require.NoError(t, server.Listen())
	defer server.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := server.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	rec := newRecorder()
	c, err := New(rec, Option{Network: NetworkUnix, Address: path})
	require.NoError(t, err)
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()

	peer := <-accepted
	defer peer.Close()
	require.NoError(t, c.Send(link.Message{Code: link.CodePing, ReqID: "p1"}))

	body, err := ReadFrame(bufio.NewReader(peer), nil, DefaultMaxFrameSize)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":1,"reqId":"p1"}`, string(body))
}

func TestRedialWaitsForPeer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.sock")
	rec := newRecorder()
	c, err := New(rec, Option{Network: NetworkUnix, Address: path})
	require.NoError(t, err)
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.Redial(context.Background(), Backoff{Min: 5 * time.Millisecond, Max: 20 * time.Millisecond})
	}()

	time.Sleep(30 * time.Millisecond)
	server, err := uds.NewServer(path)
	require.NoError(t, err)
	require.NoError(t, server.Listen())
	defer server.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := server.Accept(); err == nil {
			accepted <- conn
		}
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redial")
	}
	assert.True(t, c.Connected())
	(<-accepted).Close()
}

func TestRedialStopsOnContext(t *testing.T) {
	rec := newRecorder()
	c, err := New(rec, Option{Network: NetworkUnix, Address: filepath.Join(t.TempDir(), "none.sock")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Redial(ctx, Backoff{Min: 10 * time.Millisecond, Max: 10 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, rec.Events())
}

func TestRedialGivesUpAfterMaxAttempts(t *testing.T) {
	rec := newRecorder()
	c, err := New(rec, Option{Network: NetworkUnix, Address: filepath.Join(t.TempDir(), "none.sock")})
	require.NoError(t, err)

	err = c.Redial(context.Background(), Backoff{Min: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3})
	assert.True(t, errors.Is(err, exception.ErrLinkRedialExhausted), "%v", err)
	assert.False(t, c.Connected())
	assert.Empty(t, rec.Events())
}
