package breaker

import "testing"

func TestMonitorEdgeTriggered(t *testing.T) {
	b := New("")
	m := NewMonitor(b)

	if _, changed := m.CheckStateChange(); changed {
		t.Error("no transition yet, check should report no change")
	}

	b.Engage("test", nil)
	state, changed := m.CheckStateChange()
	if !changed || state != StateEngaged {
		t.Fatalf("expected ENGAGED transition, got %s changed=%v", state, changed)
	}
	if _, changed := m.CheckStateChange(); changed {
		t.Error("repeat check without a transition should report no change")
	}

	b.Disengage()
	state, changed = m.CheckStateChange()
	if !changed || state != StateSafe {
		t.Fatalf("expected SAFE transition, got %s changed=%v", state, changed)
	}
}

func TestMonitorHistory(t *testing.T) {
	b := New("")
	m := NewMonitor(b)

	b.Engage("a", nil)
	m.CheckStateChange()
	b.Disengage()
	m.CheckStateChange()

	hist := m.StateHistory()
	if len(hist) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(hist))
	}
	if hist[0].State != StateEngaged || hist[1].State != StateSafe {
		t.Errorf("unexpected transition order: %v", hist)
	}

	// Returned slice is a copy.
	hist[0].State = "tampered"
	if m.StateHistory()[0].State != StateEngaged {
		t.Error("StateHistory must return a copy")
	}
}

func TestMonitorHistoryCapped(t *testing.T) {
	b := New("")
	m := NewMonitor(b)

	for i := 0; i < historyCap*2; i++ {
		b.Engage("x", nil)
		m.CheckStateChange()
		b.Disengage()
		m.CheckStateChange()
	}

	if got := len(m.StateHistory()); got != historyCap {
		t.Errorf("history should cap at %d, got %d", historyCap, got)
	}
}
