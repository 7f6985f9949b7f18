// Package report builds the end-of-run deployment report: engine counters
// plus breaker status, written on normal completion and on fatal exits so
// an operator can always see whether the breaker was engaged at shutdown.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mt5crs/gateway/internal/breaker"
	"github.com/mt5crs/gateway/internal/engine"
	"github.com/mt5crs/gateway/internal/observ"
)

const (
	OutcomeCompleted = "completed"
	OutcomeFatal     = "fatal"
)

type Report struct {
	StartedAt      string          `json:"started_at"`
	FinishedAt     string          `json:"finished_at"`
	Outcome        string          `json:"outcome"`
	Error          string          `json:"error,omitempty"`
	Stats          engine.Snapshot `json:"stats"`
	CircuitBreaker breaker.Status  `json:"circuit_breaker_status"`
}

func Build(stats engine.Snapshot, status breaker.Status, startedAt time.Time, outcome string, runErr error) Report {
	r := Report{
		StartedAt:      startedAt.UTC().Format(time.RFC3339),
		FinishedAt:     time.Now().UTC().Format(time.RFC3339),
		Outcome:        outcome,
		Stats:          stats,
		CircuitBreaker: status,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Write persists the report as indented JSON and logs a one-line summary.
func Write(path string, r Report) error {
	observ.Log("run_report", map[string]any{
		"outcome":          r.Outcome,
		"ticks_processed":  r.Stats.TicksProcessed,
		"ticks_blocked":    r.Stats.TicksBlocked,
		"orders_generated": r.Stats.OrdersGenerated,
		"orders_blocked":   r.Stats.OrdersBlocked,
		"breaker_state":    string(r.CircuitBreaker.State),
	})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
