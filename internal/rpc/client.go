package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/livepeer/pipectl/internal/obslog"
)

// Client is a persistent connection to one worker's command socket: a
// single physical connection plus an in-memory table of pending
// requests, demultiplexed by request_id in a single background read
// loop. A response whose request_id has no waiter (a late reply to a
// timed-out caller) is logged and dropped, never delivered.
type Client struct {
	conn net.Conn

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
	readErr error
}

func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan Response),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		var resp Response
		if err := ReadFrame(c.conn, &resp); err != nil {
			c.mu.Lock()
			c.closed = true
			c.readErr = err
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		if ok {
			delete(c.pending, resp.RequestID)
		}
		c.mu.Unlock()
		if !ok {
			// Thrash response: the caller already gave up and timed
			// out, so there's no one left to hand this to.
			obslog.LogNoID("dropping thrash response", "request_id", resp.RequestID)
			continue
		}
		ch <- resp
		close(ch)
	}
}

// Send puts the envelope on the connection and waits for its matching
// response, honoring ctx's deadline. On ctx expiry, the waiter is
// removed from the pending table so a later response is correctly
// treated as thrash.
func (c *Client) Send(ctx context.Context, env Envelope) (Response, error) {
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("rpc: connection closed: %w", c.readErr)
	}
	c.pending[env.RequestID] = ch
	c.mu.Unlock()

	if err := WriteFrame(c.conn, env); err != nil {
		c.mu.Lock()
		delete(c.pending, env.RequestID)
		c.mu.Unlock()
		return Response{}, fmt.Errorf("rpc: send: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, fmt.Errorf("rpc: connection closed while waiting: %w", c.readErr)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, env.RequestID)
		c.mu.Unlock()
		return Response{}, ctx.Err()
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
