package uds

import (
	"context"
	"net"
	"time"

	"github.com/yanun0323/go-link/pkg/exception"
)

const unixNetwork = "unix"

// Client dials Unix domain sockets using a precomputed address.
type Client struct {
	addr    net.UnixAddr
	timeout time.Duration
}

// NewClient creates a client for the provided socket path.
// A zero timeout leaves the dial bounded only by the context.
func NewClient(path string, timeout ...time.Duration) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	c := &Client{addr: net.UnixAddr{Name: path, Net: unixNetwork}}
	if len(timeout) != 0 && timeout[0] > 0 {
		c.timeout = timeout[0]
	}
	return c, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.addr.Name
}

// Addr returns the socket address.
func (c *Client) Addr() net.Addr {
	if c == nil {
		return nil
	}
	addr := c.addr
	return &addr
}

// Dial opens a Unix domain socket connection.
func (c *Client) Dial() (*net.UnixConn, error) {
	return c.DialContext(context.Background())
}

// DialContext opens a Unix domain socket connection bounded by ctx and the client timeout.
func (c *Client) DialContext(ctx context.Context) (*net.UnixConn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	if c.addr.Name == "" {
		return nil, exception.ErrEmptyPathUDS
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, unixNetwork, c.addr.Name)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}
