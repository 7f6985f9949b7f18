package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mt5crs/gateway/internal/protocol"
)

// startServer binds a REP server on an ephemeral port and serves until the
// test ends. Returns the endpoint to dial.
func startServer(t *testing.T, h Handler) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	srv, err := NewServer(ctx, "tcp://127.0.0.1:0", h)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	go func() { _ = srv.Serve(ctx) }()
	return fmt.Sprintf("tcp://%s", srv.Addr())
}

func echoTicket(ticket int64) Handler {
	return HandlerFunc(func(req protocol.Request) (protocol.Response, error) {
		resp := protocol.OK()
		if req.Action == protocol.ActionTrade {
			resp.Ticket = ticket
		}
		return resp, nil
	})
}

func TestClientServerRoundTrip(t *testing.T) {
	ep := startServer(t, echoTicket(7001))

	ctx := context.Background()
	c, err := NewClient(ctx, ep, 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Trade(ctx, "EURUSD", 0.1, protocol.Buy)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, int64(7001), resp.Ticket)
	assert.NotEmpty(t, resp.ServerTime)
}

func TestUnknownActionRejected(t *testing.T) {
	ep := startServer(t, echoTicket(1))

	ctx := context.Background()
	c, err := NewClient(ctx, ep, 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	req := protocol.NewRequest(protocol.ActionPing)
	req.Action = "SELL_EVERYTHING"
	resp, err := c.Do(ctx, req)
	require.NoError(t, err, "a protocol-level rejection is a reply, not a transport error")
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.CodeUnknownAction, resp.ErrorCode)
	assert.Error(t, resp.Err())
}

func TestMissingTradeFieldsRejected(t *testing.T) {
	ep := startServer(t, echoTicket(1))

	ctx := context.Background()
	c, err := NewClient(ctx, ep, 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	req := protocol.NewRequest(protocol.ActionTrade) // no symbol/volume/type
	resp, err := c.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeMissingField, resp.ErrorCode)
}

func TestMalformedFrameGetsStructuredError(t *testing.T) {
	ep := startServer(t, echoTicket(1))

	ctx := context.Background()
	raw := zmq4.NewReq(ctx, zmq4.WithTimeout(2*time.Second))
	require.NoError(t, raw.Dial(ep))
	defer raw.Close()

	require.NoError(t, raw.Send(zmq4.NewMsgString("this is not json")))
	msg, err := raw.Recv()
	require.NoError(t, err, "the server must answer garbage, not die on it")

	resp, err := protocol.DecodeResponse(msg.Bytes())
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.CodeInvalidJSON, resp.ErrorCode)
}

func TestHandlerErrorBecomesInternal(t *testing.T) {
	ep := startServer(t, HandlerFunc(func(protocol.Request) (protocol.Response, error) {
		return protocol.Response{}, fmt.Errorf("terminal not connected")
	}))

	ctx := context.Background()
	c, err := NewClient(ctx, ep, 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Do(ctx, protocol.NewRequest(protocol.ActionPing))
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeInternal, resp.ErrorCode)
}

func TestSlowReplyIsUnknownOutcome(t *testing.T) {
	ep := startServer(t, HandlerFunc(func(protocol.Request) (protocol.Response, error) {
		time.Sleep(2 * time.Second) // well past the client timeout
		return protocol.OK(), nil
	}))

	ctx := context.Background()
	c, err := NewClient(ctx, ep, 200*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Trade(ctx, "EURUSD", 0.1, protocol.Buy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOutcome)
}

func TestPing(t *testing.T) {
	ep := startServer(t, echoTicket(1))

	ctx := context.Background()
	c, err := NewClient(ctx, ep, 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	latency, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Greater(t, latency, time.Duration(0))
}

func TestPubSubTickFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := NewPublisher(ctx, "tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewSubscriber(ctx, fmt.Sprintf("tcp://%s", pub.Addr()))
	require.NoError(t, err)
	defer sub.Close()

	// Publish until the subscriber joins; PUB drops frames sent before the
	// subscription lands.
	tick := protocol.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Volume: 3, Spread: 0.0002, Timestamp: 1756500000, Type: "tick"}
	go func() {
		for ctx.Err() == nil {
			_ = pub.Publish(tick)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	got, err := sub.Next()
	require.NoError(t, err)
	assert.Equal(t, tick, got)
}
