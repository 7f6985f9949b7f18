// Package ticks provides the market-data sources the engine consumes: a
// live ZeroMQ subscriber and a paced mock generator for dry runs and tests.
package ticks

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/mt5crs/gateway/internal/gateway"
	"github.com/mt5crs/gateway/internal/protocol"
)

// ErrExhausted signals the end of a bounded source; the engine stops cleanly.
var ErrExhausted = errors.New("tick source exhausted")

// Source yields ticks one at a time in arrival order.
type Source interface {
	Next(ctx context.Context) (protocol.Tick, error)
}

// MockSource generates a bounded random-walk tick stream for one symbol,
// paced by a rate limiter so dry runs behave like a live feed.
type MockSource struct {
	symbol    string
	remaining int
	mid       float64
	spread    float64
	limiter   *rate.Limiter
	rng       *rand.Rand
}

// NewMockSource emits count ticks at ratePerSec around basePrice. A
// non-positive rate means unpaced (tests).
func NewMockSource(symbol string, count int, ratePerSec, basePrice, spread float64) *MockSource {
	var lim *rate.Limiter
	if ratePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &MockSource{
		symbol:    symbol,
		remaining: count,
		mid:       basePrice,
		spread:    spread,
		limiter:   lim,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockSource) Next(ctx context.Context) (protocol.Tick, error) {
	if m.remaining <= 0 {
		return protocol.Tick{}, ErrExhausted
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return protocol.Tick{}, err
		}
	} else if err := ctx.Err(); err != nil {
		return protocol.Tick{}, err
	}
	m.remaining--

	// Random walk, one step per tick.
	m.mid += (m.rng.Float64() - 0.5) * m.spread * 4
	bid := m.mid - m.spread/2
	return protocol.Tick{
		Symbol:    m.symbol,
		Bid:       bid,
		Ask:       bid + m.spread,
		Volume:    int64(m.rng.Intn(100) + 1),
		Spread:    m.spread,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Type:      "tick",
	}, nil
}

// SubSource adapts a gateway.Subscriber to the Source interface.
type SubSource struct {
	sub *gateway.Subscriber
}

func NewSubSource(sub *gateway.Subscriber) *SubSource {
	return &SubSource{sub: sub}
}

func (s *SubSource) Next(ctx context.Context) (protocol.Tick, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Tick{}, err
	}
	return s.sub.Next()
}

// SliceSource replays a fixed set of ticks; test helper.
type SliceSource struct {
	ticks []protocol.Tick
	pos   int
}

func NewSliceSource(ts ...protocol.Tick) *SliceSource {
	return &SliceSource{ticks: ts}
}

func (s *SliceSource) Next(ctx context.Context) (protocol.Tick, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Tick{}, err
	}
	if s.pos >= len(s.ticks) {
		return protocol.Tick{}, ErrExhausted
	}
	t := s.ticks[s.pos]
	s.pos++
	return t, nil
}
