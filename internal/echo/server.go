package echo

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"github.com/yanun0323/go-link/internal/chaos"
	"github.com/yanun0323/go-link/pkg/link"
	"github.com/yanun0323/go-link/pkg/link/transport"
)

// Listener is satisfied by net.Listener and uds.Server.
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
}

// Server is a peer that acknowledges every business message and answers every heartbeat.
type Server struct {
	chaos        *chaos.Engine
	codec        link.Codec
	maxFrameSize int

	wg sync.WaitGroup
}

// New builds a server. A nil engine replies without faults.
func New(engine *chaos.Engine) *Server {
	return &Server{
		chaos:        engine,
		codec:        link.JSONCodec{},
		maxFrameSize: transport.DefaultMaxFrameSize,
	}
}

// Reply returns the peer answer for msg: a heartbeat ack for Ping,
// an ack followed by the echoed event for Chat, nothing otherwise.
func Reply(msg link.Message) []link.Message {
	switch msg.Code {
	case link.CodePing:
		return []link.Message{{Code: link.CodePing, ReqID: msg.ReqID}}
	case link.CodeChat:
		return []link.Message{
			{Code: link.CodeOK, ReqID: msg.ReqID},
			link.NewMessage(link.CodeChat, msg.Body),
		}
	default:
		return nil
	}
}

// Serve accepts connections until ctx is done or ln fails, then waits for every handler.
func (s *Server) Serve(ctx context.Context, ln Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handle(ctx, c)
		}(conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logs.Infof("peer connected: %s", conn.RemoteAddr())

	var (
		writeMu sync.Mutex
		pending sync.WaitGroup
		buf     []byte
		err     error
	)
	defer pending.Wait()

	write := func(msg link.Message) {
		frame, err := transport.AppendFrame(nil, s.codec, msg)
		if err != nil {
			logs.Errorf("encode reply, err: %+v", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := conn.Write(frame); err != nil {
			logs.Errorf("write reply, reqId: %s, err: %+v", msg.ReqID, err)
		}
	}

	r := bufio.NewReader(conn)
	for {
		buf, err = transport.ReadFrame(r, buf, s.maxFrameSize)
		if err != nil {
			if !stderrors.Is(err, io.EOF) && ctx.Err() == nil {
				logs.Errorf("read frame, err: %+v", err)
			}
			logs.Infof("peer disconnected: %s", conn.RemoteAddr())
			return
		}

		msg, err := s.codec.Decode(buf)
		if err != nil {
			logs.Errorf("decode frame, err: %+v", err)
			continue
		}
		logs.Infof("receive: %s", msg)

		for _, out := range Reply(msg) {
			for _, reply := range s.chaos.Process(out) {
				if reply.Delay <= 0 {
					write(reply.Msg)
					continue
				}
				pending.Add(1)
				go func(reply chaos.Reply) {
					defer pending.Done()
					select {
					case <-ctx.Done():
					case <-time.After(reply.Delay):
						write(reply.Msg)
					}
				}(reply)
			}
		}
	}
}
