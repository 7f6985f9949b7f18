// mt5stub stands in for the MT5 terminal during development and tests: it
// answers command requests on a REP socket with scripted values and streams
// synthetic ticks on a PUB socket. The -reply-delay flag exists to provoke
// client-side timeouts.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/mt5crs/gateway/internal/gateway"
	"github.com/mt5crs/gateway/internal/observ"
	"github.com/mt5crs/gateway/internal/protocol"
)

type stub struct {
	mu         sync.Mutex
	balance    float64
	nextTicket int64
	positions  []protocol.Position
	replyDelay time.Duration
}

func (s *stub) Handle(req protocol.Request) (protocol.Response, error) {
	if s.replyDelay > 0 {
		time.Sleep(s.replyDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Action {
	case protocol.ActionPing, protocol.ActionHeartbeat:
		resp := protocol.OK()
		resp.LatencyMs = float64(rand.Intn(5)) + rand.Float64()
		return resp, nil

	case protocol.ActionTrade:
		s.nextTicket++
		s.positions = append(s.positions, protocol.Position{
			Ticket: s.nextTicket,
			Symbol: req.Symbol,
			Volume: req.Volume,
			Type:   string(req.Type),
		})
		resp := protocol.OK()
		resp.Ticket = s.nextTicket
		observ.Log("stub_trade", map[string]any{
			"uuid":   req.UUID,
			"symbol": req.Symbol,
			"side":   string(req.Type),
			"ticket": s.nextTicket,
		})
		return resp, nil

	case protocol.ActionGetAccount, protocol.ActionAccountInfo:
		resp := protocol.OK()
		resp.Balance = s.balance
		resp.Equity = s.balance
		return resp, nil

	case protocol.ActionGetPositions:
		resp := protocol.OK()
		resp.Positions = append([]protocol.Position(nil), s.positions...)
		return resp, nil
	}
	// The server already rejects unknown actions before dispatch.
	return protocol.Errf(protocol.CodeInternal, "unhandled action %s", req.Action), nil
}

func main() {
	var (
		repEndpoint = flag.String("rep", "tcp://127.0.0.1:5555", "command REP endpoint")
		pubEndpoint = flag.String("pub", "tcp://127.0.0.1:5556", "tick PUB endpoint")
		symbols     = flag.String("symbols", "EURUSD", "comma-separated symbols to stream")
		ratePerSec  = flag.Float64("rate", 5, "ticks per second per symbol")
		balance     = flag.Float64("balance", 10000, "scripted account balance")
		replyDelay  = flag.Duration("reply-delay", 0, "artificial delay before every reply")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := gateway.NewServer(ctx, *repEndpoint, &stub{balance: *balance, replyDelay: *replyDelay})
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", *repEndpoint, err)
		os.Exit(1)
	}
	defer srv.Close()

	pub, err := gateway.NewPublisher(ctx, *pubEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", *pubEndpoint, err)
		os.Exit(1)
	}
	defer pub.Close()

	observ.Log("stub_started", map[string]any{
		"rep":     *repEndpoint,
		"pub":     *pubEndpoint,
		"symbols": *symbols,
	})

	go streamTicks(ctx, pub, strings.Split(*symbols, ","), *ratePerSec)

	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
}

func streamTicks(ctx context.Context, pub *gateway.Publisher, symbols []string, ratePerSec float64) {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	lim := rate.NewLimiter(rate.Limit(ratePerSec*float64(len(symbols))), 1)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	mids := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		mids[s] = 1.1000
	}

	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		sym := symbols[rng.Intn(len(symbols))]
		spread := 0.0001 + rng.Float64()*0.0002
		mids[sym] += (rng.Float64() - 0.5) * spread * 4
		bid := mids[sym] - spread/2
		tick := protocol.Tick{
			Symbol:    sym,
			Bid:       bid,
			Ask:       bid + spread,
			Volume:    int64(rng.Intn(100) + 1),
			Spread:    spread,
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
			Type:      "tick",
		}
		if err := pub.Publish(tick); err != nil {
			if ctx.Err() != nil {
				return
			}
			observ.Log("stub_publish_warn", map[string]any{"error": err.Error()})
		}
	}
}
