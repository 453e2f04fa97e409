package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/whuanle/easytouch/internal/envelope"
)

// Client sends one request per connection to the daemon described by a
// Descriptor.
type Client struct {
	network        string
	address        string
	token          string
	connectTimeout time.Duration
}

// NewClient creates a client for the daemon advertised by d.
func NewClient(d Descriptor, connectTimeout time.Duration) *Client {
	return &Client{
		network:        d.Network,
		address:        d.Address,
		token:          d.Token,
		connectTimeout: connectTimeout,
	}
}

// Send delivers req and waits for the daemon's envelope. Connect and write
// failures wrap ErrUnreachable, as does a reply from a daemon that was
// stopping and never read the request; failures while waiting for the reply
// wrap ErrBroken.
func (c *Client) Send(ctx context.Context, req *Request) (envelope.Transport, error) {
	out := *req
	out.Token = c.token
	if out.Args == nil {
		out.Args = []string{}
	}

	conn, err := dial(ctx, c.network, c.address, c.connectTimeout)
	if err != nil {
		return envelope.Transport{}, fmt.Errorf("%w: connecting to %s: %w", ErrUnreachable, c.address, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := writeLine(conn, &out); err != nil {
		return envelope.Transport{}, fmt.Errorf("%w: sending request: %w", ErrUnreachable, err)
	}

	line, err := readLine(bufio.NewReader(conn), 0)
	if err != nil {
		return envelope.Transport{}, fmt.Errorf("%w: reading response: %w", ErrBroken, err)
	}

	var resp envelope.Transport
	if err := json.Unmarshal(line, &resp); err != nil {
		return envelope.Transport{}, fmt.Errorf("%w: decoding response: %w", ErrBroken, err)
	}
	if !resp.Success && resp.Error == ErrStopping.Error() {
		return envelope.Transport{}, fmt.Errorf("%w: %w", ErrUnreachable, ErrStopping)
	}
	return resp, nil
}

// Ping sends the liveness command and reports whether a daemon answered
// successfully at both envelope layers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Send(ctx, &Request{Command: CommandPing})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: ping rejected: %s", ErrUnreachable, resp.Error)
	}
	if inner := resp.Unwrap(); !inner.Success {
		return fmt.Errorf("%w: ping failed: %s", ErrUnreachable, inner.Error)
	}
	return nil
}
