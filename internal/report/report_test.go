package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mt5crs/gateway/internal/breaker"
	"github.com/mt5crs/gateway/internal/engine"
)

func TestWriteReport(t *testing.T) {
	b := breaker.New("")
	b.Engage("fatal_exit", nil)

	r := Build(engine.Snapshot{TicksProcessed: 10, TicksBlocked: 4}, b.Status(), time.Now().Add(-time.Minute), OutcomeFatal, os.ErrDeadlineExceeded)
	path := filepath.Join(t.TempDir(), "sub", "report.json")
	if err := Write(path, r); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out Report
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if out.Outcome != OutcomeFatal {
		t.Errorf("outcome = %q", out.Outcome)
	}
	if out.CircuitBreaker.State != breaker.StateEngaged {
		t.Error("report must carry the breaker state at exit")
	}
	if out.Stats.TicksProcessed != 10 {
		t.Errorf("stats not carried: %+v", out.Stats)
	}
}
