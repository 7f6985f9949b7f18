package engine

import (
	"math"

	"github.com/mt5crs/gateway/internal/protocol"
)

// SignalAction is the decision a strategy hands back per tick.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal is ephemeral: it exists for one tick cycle and is never persisted.
type Signal struct {
	Action     SignalAction
	Symbol     string
	Confidence float64 // [0,1]
}

// Strategy derives a signal from one tick. Called once per tick, on the
// engine loop goroutine.
type Strategy interface {
	Evaluate(t protocol.Tick) Signal
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(t protocol.Tick) Signal

func (f StrategyFunc) Evaluate(t protocol.Tick) Signal { return f(t) }

// SpreadStrategy is the reference strategy: follow the mid-price direction
// while the spread stays tight, hold otherwise. It keeps one float of state
// (the previous mid) and is not meant to make money, only to exercise the
// full gate/dispatch path with plausible decisions.
type SpreadStrategy struct {
	MaxSpread float64 // widest spread still worth trading
	lastMid   float64
}

func NewSpreadStrategy(maxSpread float64) *SpreadStrategy {
	return &SpreadStrategy{MaxSpread: maxSpread}
}

func (s *SpreadStrategy) Evaluate(t protocol.Tick) Signal {
	mid := (t.Bid + t.Ask) / 2
	prev := s.lastMid
	s.lastMid = mid

	if prev == 0 || t.Ask-t.Bid > s.MaxSpread {
		return Signal{Action: ActionHold, Symbol: t.Symbol}
	}

	move := mid - prev
	if move == 0 {
		return Signal{Action: ActionHold, Symbol: t.Symbol}
	}

	conf := math.Min(math.Abs(move)/s.MaxSpread, 1.0)
	action := ActionBuy
	if move < 0 {
		action = ActionSell
	}
	return Signal{Action: action, Symbol: t.Symbol, Confidence: conf}
}
