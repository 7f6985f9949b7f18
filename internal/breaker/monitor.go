package breaker

import (
	"sync"
	"time"

	"github.com/mt5crs/gateway/internal/observ"
)

// historyCap bounds the transition log; oldest entries are dropped.
const historyCap = 256

// Transition is one observed state change.
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`
}

// Monitor watches a Breaker and reports state transitions edge-triggered:
// CheckStateChange answers only when the state differs from the previous
// observation. It observes; it never engages or disengages.
type Monitor struct {
	mu      sync.Mutex
	b       *Breaker
	last    State
	history []Transition
}

func NewMonitor(b *Breaker) *Monitor {
	return &Monitor{b: b, last: b.State()}
}

// CheckStateChange polls the breaker (including its sentinel file) and
// returns the new state with ok=true only on a transition.
func (m *Monitor) CheckStateChange() (State, bool) {
	// IsSafe rather than State so an external sentinel engagement is seen.
	cur := StateSafe
	if !m.b.IsSafe() {
		cur = StateEngaged
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur == m.last {
		return cur, false
	}
	m.last = cur
	m.history = append(m.history, Transition{Timestamp: time.Now().UTC(), State: cur})
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	observ.IncCounter("breaker_transitions_total", map[string]string{"to": string(cur)})
	return cur, true
}

// StateHistory returns a copy of the recorded transitions, oldest first.
func (m *Monitor) StateHistory() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
