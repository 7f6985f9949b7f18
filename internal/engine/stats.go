package engine

import "sync"

// Snapshot is a read-only copy of the engine counters, taken for reports
// and assertions. All counters are monotone.
type Snapshot struct {
	TicksProcessed   int64 `json:"ticks_processed"`
	TicksBlocked     int64 `json:"ticks_blocked"`
	SignalsGenerated int64 `json:"signals_generated"`
	OrdersGenerated  int64 `json:"orders_generated"`
	OrdersBlocked    int64 `json:"orders_blocked"`
}

// stats is owned by the engine loop; the mutex exists for external readers
// (report generation, metrics scrapes) while a run is in progress.
type stats struct {
	mu sync.Mutex
	s  Snapshot
}

func (st *stats) tickProcessed() {
	st.mu.Lock()
	st.s.TicksProcessed++
	st.mu.Unlock()
}

func (st *stats) tickBlocked() {
	st.mu.Lock()
	st.s.TicksBlocked++
	st.mu.Unlock()
}

func (st *stats) signalGenerated() {
	st.mu.Lock()
	st.s.SignalsGenerated++
	st.mu.Unlock()
}

func (st *stats) orderGenerated() {
	st.mu.Lock()
	st.s.OrdersGenerated++
	st.mu.Unlock()
}

func (st *stats) orderBlocked() {
	st.mu.Lock()
	st.s.OrdersBlocked++
	st.mu.Unlock()
}

func (st *stats) snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}
