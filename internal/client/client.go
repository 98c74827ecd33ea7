// Package client implements the TCP client described in spec.md §4.6: one
// connection, one command, one response, bounded timeouts, no retries.
package client

import (
	"net"
	"time"

	"github.com/aleksandarhr/kvs/internal/kvserror"
	"github.com/aleksandarhr/kvs/internal/wire"
)

// DefaultTimeout bounds connect, read, and write — spec.md §4.6's default
// 5 second bound.
const DefaultTimeout = 5 * time.Second

// Client opens a new TCP connection per request; it holds no persistent
// connection state, matching spec.md §9's one-request-per-connection
// contract (pipelining is a non-goal).
type Client struct {
	addr    string
	timeout time.Duration
}

// New builds a client targeting addr with the default timeout.
func New(addr string) *Client {
	return &Client{addr: addr, timeout: DefaultTimeout}
}

// WithTimeout overrides the connect/read/write timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, kvserror.Wrapf(kvserror.ErrIO, "dial %s: %v", c.addr, err)
	}
	deadline := time.Now().Add(c.timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, kvserror.Wrap(kvserror.ErrIO, "set connection deadline")
	}
	return conn, nil
}

func (c *Client) roundTrip(cmd wire.Command) (wire.CommandResponse, error) {
	conn, err := c.dial()
	if err != nil {
		return wire.CommandResponse{}, err
	}
	defer conn.Close()

	if _, err := wire.EncodeCommand(conn, cmd); err != nil {
		return wire.CommandResponse{}, kvserror.Wrap(kvserror.ErrIO, "send command")
	}
	resp, err := wire.DecodeResponse(conn)
	if err != nil {
		return wire.CommandResponse{}, kvserror.Wrap(kvserror.ErrSerialization, "read response")
	}
	return resp, nil
}

// Set sends a Set command and returns the server's error, if any.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(wire.NewSet(key, value))
	if err != nil {
		return err
	}
	if resp.IsErr() {
		return kvserror.GeneralError(resp.ErrMsg)
	}
	return nil
}

// Get sends a Get command, returning (value, true, nil) when present,
// ("", false, nil) when absent, or an error.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(wire.NewGet(key))
	if err != nil {
		return "", false, err
	}
	if resp.IsErr() {
		return "", false, kvserror.GeneralError(resp.ErrMsg)
	}
	return resp.Value, resp.HasValue, nil
}

// Remove sends a Remove command, translating a "Key not found" server
// response into kvserror.ErrKeyNotFound for callers to match on.
func (c *Client) Remove(key string) error {
	resp, err := c.roundTrip(wire.NewRemove(key))
	if err != nil {
		return err
	}
	if resp.IsErr() {
		if resp.ErrMsg == "Key not found" {
			return kvserror.ErrKeyNotFound
		}
		return kvserror.GeneralError(resp.ErrMsg)
	}
	return nil
}
