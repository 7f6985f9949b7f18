package engine

import (
	"testing"

	"github.com/mt5crs/gateway/internal/protocol"
)

func tick(bid, ask float64) protocol.Tick {
	return protocol.Tick{Symbol: "EURUSD", Bid: bid, Ask: ask, Type: "tick"}
}

func TestSpreadStrategyFollowsDirection(t *testing.T) {
	s := NewSpreadStrategy(0.0005)

	if got := s.Evaluate(tick(1.1000, 1.1002)); got.Action != ActionHold {
		t.Errorf("first tick has no reference mid, expected HOLD, got %s", got.Action)
	}
	if got := s.Evaluate(tick(1.1010, 1.1012)); got.Action != ActionBuy {
		t.Errorf("rising mid should BUY, got %s", got.Action)
	}
	if got := s.Evaluate(tick(1.1000, 1.1002)); got.Action != ActionSell {
		t.Errorf("falling mid should SELL, got %s", got.Action)
	}
}

func TestSpreadStrategyHoldsOnWideSpread(t *testing.T) {
	s := NewSpreadStrategy(0.0005)
	s.Evaluate(tick(1.1000, 1.1002))

	if got := s.Evaluate(tick(1.1010, 1.1030)); got.Action != ActionHold {
		t.Errorf("wide spread should HOLD, got %s", got.Action)
	}
}

func TestSpreadStrategyConfidenceBounded(t *testing.T) {
	s := NewSpreadStrategy(0.0005)
	s.Evaluate(tick(1.1000, 1.1002))

	sig := s.Evaluate(tick(1.2000, 1.2002)) // huge move
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Errorf("confidence out of [0,1]: %f", sig.Confidence)
	}
	if sig.Confidence != 1.0 {
		t.Errorf("outsized move should clamp to 1.0, got %f", sig.Confidence)
	}
}
