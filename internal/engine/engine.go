// Package engine runs the live tick loop: receive, gate on the circuit
// breaker, evaluate a strategy, dispatch orders over the gateway, record
// statistics. One tick at a time; order dispatch is strictly ordered.
package engine

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/mt5crs/gateway/internal/breaker"
	"github.com/mt5crs/gateway/internal/gateway"
	"github.com/mt5crs/gateway/internal/journal"
	"github.com/mt5crs/gateway/internal/observ"
	"github.com/mt5crs/gateway/internal/protocol"
	"github.com/mt5crs/gateway/internal/ticks"
)

// Dispatcher sends one command request and resolves its reply or timeout.
// gateway.Client is the production implementation.
type Dispatcher interface {
	Do(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// Config bounds one engine run.
type Config struct {
	Volume          float64 // lot size per order
	MaxIterations   int     // 0 = run until the source is exhausted
	OrderRatePerSec float64 // 0 = no dispatch throttle
}

// Engine ties the breaker gate to order dispatch. It shares the breaker by
// reference; it never constructs, engages, or disengages it on its own
// (aside from reading the gate).
type Engine struct {
	cfg     Config
	brk     *breaker.Breaker
	src     ticks.Source
	strat   Strategy
	disp    Dispatcher
	jrnl    *journal.Journal // optional
	limiter *rate.Limiter
	stats   stats
}

func New(cfg Config, brk *breaker.Breaker, src ticks.Source, strat Strategy, disp Dispatcher, jrnl *journal.Journal) *Engine {
	e := &Engine{cfg: cfg, brk: brk, src: src, strat: strat, disp: disp, jrnl: jrnl}
	if cfg.Volume <= 0 {
		e.cfg.Volume = 0.01
	}
	if cfg.OrderRatePerSec > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.OrderRatePerSec), 1)
	}
	return e
}

// Stats returns a copy of the run counters.
func (e *Engine) Stats() Snapshot { return e.stats.snapshot() }

// Run processes ticks until the source is exhausted, MaxIterations is
// reached, or the context is cancelled. Protocol failures are counted and
// survived; only source errors and cancellation end the run early.
func (e *Engine) Run(ctx context.Context) error {
	observ.Log("engine_started", map[string]any{
		"max_iterations": e.cfg.MaxIterations,
		"volume":         e.cfg.Volume,
	})

	iterations := 0
	for {
		if e.cfg.MaxIterations > 0 && iterations >= e.cfg.MaxIterations {
			break
		}
		tick, err := e.src.Next(ctx)
		if errors.Is(err, ticks.ErrExhausted) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		iterations++
		e.processTick(ctx, tick)
	}

	observ.Log("engine_stopped", map[string]any{"iterations": iterations})
	return nil
}

// processTick is one full cycle: gate, evaluate, dispatch, record. The gate
// check comes before any business logic, on every tick, without exception.
func (e *Engine) processTick(ctx context.Context, tick protocol.Tick) {
	defer e.stats.tickProcessed()

	if !e.brk.IsSafe() {
		e.stats.tickBlocked()
		observ.IncCounter("engine_ticks_blocked_total", map[string]string{"symbol": tick.Symbol})
		return
	}

	sig := e.strat.Evaluate(tick)
	if sig.Action == ActionHold {
		return
	}
	e.stats.signalGenerated()
	observ.IncCounter("engine_signals_total", map[string]string{
		"symbol": sig.Symbol,
		"action": string(sig.Action),
	})

	e.dispatch(ctx, sig)
}

func (e *Engine) dispatch(ctx context.Context, sig Signal) {
	if e.limiter != nil && !e.limiter.Allow() {
		e.stats.orderBlocked()
		observ.IncCounter("engine_orders_blocked_total", map[string]string{"reason": "rate_limited"})
		return
	}

	// The state may have changed since the top-of-tick gate; re-check
	// immediately before the side-effecting send.
	if !e.brk.IsSafe() {
		e.stats.orderBlocked()
		observ.IncCounter("engine_orders_blocked_total", map[string]string{"reason": "breaker_engaged"})
		return
	}

	side := protocol.Buy
	if sig.Action == ActionSell {
		side = protocol.Sell
	}
	req := protocol.NewTradeRequest(sig.Symbol, e.cfg.Volume, side)

	// Journal before the send: if we crash mid-flight the reconciliation
	// pass on restart finds the dangling entry.
	if e.jrnl != nil {
		e.jrnl.Sent(req)
	}

	resp, err := e.disp.Do(ctx, req)
	switch {
	case errors.Is(err, gateway.ErrUnknownOutcome):
		// Sent but unconfirmed. Do not retry: the order may have filled.
		e.stats.orderBlocked()
		if e.jrnl != nil {
			e.jrnl.Unconfirmed(req.UUID)
		}
		observ.Log("engine_order_unconfirmed_warn", map[string]any{
			"uuid":   req.UUID,
			"symbol": sig.Symbol,
		})
		observ.IncCounter("engine_orders_blocked_total", map[string]string{"reason": "timeout"})
	case err != nil:
		e.stats.orderBlocked()
		if e.jrnl != nil {
			e.jrnl.Rejected(req.UUID, protocol.CodeInternal)
		}
		observ.Log("engine_order_error_warn", map[string]any{
			"uuid":  req.UUID,
			"error": err.Error(),
		})
		observ.IncCounter("engine_orders_blocked_total", map[string]string{"reason": "protocol_error"})
	case resp.Status != protocol.StatusOK:
		e.stats.orderBlocked()
		if e.jrnl != nil {
			e.jrnl.Rejected(req.UUID, resp.ErrorCode)
		}
		observ.Log("engine_order_rejected_warn", map[string]any{
			"uuid": req.UUID,
			"code": string(resp.ErrorCode),
		})
		observ.IncCounter("engine_orders_blocked_total", map[string]string{"reason": string(resp.ErrorCode)})
	default:
		e.stats.orderGenerated()
		if e.jrnl != nil {
			e.jrnl.Confirmed(req.UUID, resp.Ticket)
		}
		observ.Log("engine_order_filled", map[string]any{
			"uuid":       req.UUID,
			"symbol":     sig.Symbol,
			"side":       string(side),
			"ticket":     resp.Ticket,
			"confidence": sig.Confidence,
		})
		observ.IncCounter("engine_orders_total", map[string]string{
			"symbol": sig.Symbol,
			"side":   string(side),
		})
	}
}
