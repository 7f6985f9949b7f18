// Package gateway carries the wire protocol over ZeroMQ: a REQ/REP command
// channel toward the MT5 terminal and a PUB/SUB tick feed from it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/mt5crs/gateway/internal/observ"
	"github.com/mt5crs/gateway/internal/protocol"
)

// ErrUnknownOutcome means the request was sent but no reply arrived within
// the timeout. For a TRADE the order may or may not have executed; callers
// must NOT retry the same logical order, only a deliberate reconciliation
// pass may resolve it.
var ErrUnknownOutcome = errors.New("reply timeout, request outcome unknown")

const DefaultTimeout = 5 * time.Second

// Client wraps a REQ socket. One request is in flight at a time; the mutex
// serializes callers because REQ/REP rejects out-of-turn sends. After a
// receive timeout the socket is torn down and redialed: a REQ socket that
// missed its reply is latched and must never be reused.
type Client struct {
	mu       sync.Mutex
	ctx      context.Context
	endpoint string
	timeout  time.Duration
	sock     zmq4.Socket
}

// NewClient dials the command endpoint. timeout bounds every receive; zero
// means DefaultTimeout.
func NewClient(ctx context.Context, endpoint string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{ctx: ctx, endpoint: endpoint, timeout: timeout}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial() error {
	sock := zmq4.NewReq(c.ctx, zmq4.WithTimeout(c.timeout))
	if err := sock.Dial(c.endpoint); err != nil {
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	c.sock = sock
	return nil
}

// Do sends one request and waits for its reply. On send failure the request
// never reached the wire and the error is returned as-is. On receive
// failure (timeout included) the outcome is unknown: ErrUnknownOutcome is
// returned and the socket is replaced.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return protocol.Response{}, err
	}

	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	if err := c.sock.Send(zmq4.NewMsg(data)); err != nil {
		observ.IncCounter("gateway_send_errors_total", map[string]string{"action": string(req.Action)})
		return protocol.Response{}, fmt.Errorf("send %s: %w", req.Action, err)
	}

	msg, err := c.sock.Recv()
	observ.RecordDuration("gateway_roundtrip", time.Since(start), map[string]string{"action": string(req.Action)})
	if err != nil {
		observ.Log("gateway_reply_timeout_warn", map[string]any{
			"action": string(req.Action),
			"uuid":   req.UUID,
			"error":  err.Error(),
		})
		observ.IncCounter("gateway_timeouts_total", map[string]string{"action": string(req.Action)})
		c.reset()
		return protocol.Response{}, fmt.Errorf("%s %s: %w", req.Action, req.UUID, ErrUnknownOutcome)
	}

	resp, err := protocol.DecodeResponse(msg.Bytes())
	if err != nil {
		observ.IncCounter("gateway_decode_errors_total", nil)
		return protocol.Response{}, err
	}
	return resp, nil
}

// reset replaces the latched REQ socket with a fresh one.
func (c *Client) reset() {
	_ = c.sock.Close()
	if err := c.dial(); err != nil {
		observ.Log("gateway_redial_warn", map[string]any{"error": err.Error()})
	}
}

// Ping round-trips a PING and returns the measured latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	resp, err := c.Do(ctx, protocol.NewRequest(protocol.ActionPing))
	if err != nil {
		return 0, err
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Trade sends a market order and returns the broker response.
func (c *Client) Trade(ctx context.Context, symbol string, volume float64, side protocol.TradeType) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewTradeRequest(symbol, volume, side))
}

// Account fetches balance and equity.
func (c *Client) Account(ctx context.Context) (protocol.Response, error) {
	resp, err := c.Do(ctx, protocol.NewRequest(protocol.ActionGetAccount))
	if err != nil {
		return protocol.Response{}, err
	}
	return resp, resp.Err()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.Close()
}
