package gateway

import (
	"context"
	"net"

	"github.com/go-zeromq/zmq4"

	"github.com/mt5crs/gateway/internal/observ"
	"github.com/mt5crs/gateway/internal/protocol"
)

// Publisher fans ticks out on a PUB socket. Fire-and-forget: there is no
// acknowledgment and no heartbeat on this channel.
type Publisher struct {
	sock zmq4.Socket
}

func NewPublisher(ctx context.Context, endpoint string) (*Publisher, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		return nil, err
	}
	return &Publisher{sock: sock}, nil
}

func (p *Publisher) Addr() net.Addr { return p.sock.Addr() }

func (p *Publisher) Publish(t protocol.Tick) error {
	data, err := protocol.EncodeTick(t)
	if err != nil {
		return err
	}
	if err := p.sock.Send(zmq4.NewMsg(data)); err != nil {
		return err
	}
	observ.IncCounter("gateway_ticks_published_total", map[string]string{"symbol": t.Symbol})
	return nil
}

func (p *Publisher) Close() error { return p.sock.Close() }

// Subscriber consumes the tick feed with an empty topic filter
// (subscribe-to-all). Gaps are expected; undecodable frames are counted and
// skipped rather than surfaced.
type Subscriber struct {
	sock zmq4.Socket
}

func NewSubscriber(ctx context.Context, endpoint string) (*Subscriber, error) {
	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(endpoint); err != nil {
		return nil, err
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		sock.Close()
		return nil, err
	}
	return &Subscriber{sock: sock}, nil
}

// Next blocks until the next decodable tick arrives or the socket fails.
func (s *Subscriber) Next() (protocol.Tick, error) {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			return protocol.Tick{}, err
		}
		t, err := protocol.DecodeTick(msg.Bytes())
		if err != nil {
			observ.IncCounter("gateway_tick_decode_errors_total", nil)
			continue
		}
		return t, nil
	}
}

func (s *Subscriber) Close() error { return s.sock.Close() }
