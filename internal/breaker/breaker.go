// Package breaker implements the trading kill switch: a binary latch that
// every order-dispatch path must check, backed by a sentinel file so that
// other processes (operator tooling, sibling engines) see engagements too.
package breaker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mt5crs/gateway/internal/observ"
)

// State of the breaker. ENGAGED blocks all trading until an explicit
// Disengage; there is no automatic recovery path.
type State string

const (
	StateSafe    State = "SAFE"
	StateEngaged State = "ENGAGED"
)

// Engagement records why and when the breaker was engaged. It is what gets
// written into the sentinel file.
type Engagement struct {
	Timestamp string         `json:"timestamp"`
	Reason    string         `json:"reason"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Status is a point-in-time snapshot for reports and operator tooling.
type Status struct {
	State               State          `json:"state"`
	IsEngaged           bool           `json:"is_engaged"`
	IsSafe              bool           `json:"is_safe"`
	EngagementTimestamp string         `json:"engagement_timestamp,omitempty"`
	EngagementReason    string         `json:"engagement_reason,omitempty"`
	EngagementMetadata  map[string]any `json:"engagement_metadata,omitempty"`
	SentinelPath        string         `json:"sentinel_path,omitempty"`
}

// Breaker is the SAFE/ENGAGED latch. The sentinel file, when configured, is
// the authority across processes: its presence means ENGAGED no matter what
// the in-memory flag says, and IsSafe reconciles from it on every call.
//
// The mutex guards only the in-memory flag; sentinel I/O happens outside the
// critical section so the hot path never blocks on disk.
type Breaker struct {
	mu           sync.Mutex
	engaged      bool
	engagement   *Engagement
	sentinelPath string
}

// New constructs a breaker. An empty sentinelPath disables file backing
// (in-memory only, used by tests and single-process runs). If the sentinel
// already exists the breaker starts ENGAGED: a prior engagement survives
// restarts until someone explicitly disengages.
func New(sentinelPath string) *Breaker {
	b := &Breaker{sentinelPath: sentinelPath}
	if sentinelPath != "" {
		if eng, ok := b.readSentinel(); ok {
			b.engaged = true
			b.engagement = eng
			observ.Log("breaker_recovered_engaged", map[string]any{
				"sentinel": sentinelPath,
				"reason":   eng.Reason,
			})
		}
	}
	return b
}

// Engage flips SAFE -> ENGAGED. Returns false if already engaged;
// engagement never stacks. Sentinel write failures are logged, not
// returned: the in-memory flag is already set, and a throwing kill switch
// is worse than a non-durable one.
func (b *Breaker) Engage(reason string, metadata map[string]any) bool {
	eng := &Engagement{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Metadata:  metadata,
	}

	b.mu.Lock()
	if b.engaged {
		b.mu.Unlock()
		return false
	}
	b.engaged = true
	b.engagement = eng
	b.mu.Unlock()

	observ.Log("breaker_engaged", map[string]any{"reason": reason})
	observ.IncCounter("breaker_engagements_total", map[string]string{"reason": reason})
	observ.SetGauge("breaker_engaged", 1, nil)

	if b.sentinelPath != "" {
		if err := b.writeSentinel(eng); err != nil {
			observ.Log("breaker_sentinel_write_warn", map[string]any{
				"error":    err.Error(),
				"sentinel": b.sentinelPath,
			})
		}
	}
	return true
}

// Disengage flips ENGAGED -> SAFE and removes the sentinel. Returns false
// if already safe. This is the only way back to SAFE; it must only ever be
// called by deliberate operator action, never from a timer or tick handler.
func (b *Breaker) Disengage() bool {
	// Pick up an engagement another process may have written, so that a
	// cross-process disengage clears both the file and our flag.
	b.reconcile()

	b.mu.Lock()
	if !b.engaged {
		b.mu.Unlock()
		return false
	}
	b.engaged = false
	b.engagement = nil
	b.mu.Unlock()

	observ.Log("breaker_disengaged", nil)
	observ.SetGauge("breaker_engaged", 0, nil)

	if b.sentinelPath != "" {
		if err := os.Remove(b.sentinelPath); err != nil && !os.IsNotExist(err) {
			observ.Log("breaker_sentinel_remove_warn", map[string]any{
				"error":    err.Error(),
				"sentinel": b.sentinelPath,
			})
		}
	}
	return true
}

// IsSafe is the gate check called before every side-effecting action. It
// returns false when engaged, and it reconciles from disk first: if the
// sentinel exists (even corrupt), another process has engaged the breaker
// and the in-memory flag flips to ENGAGED before answering.
func (b *Breaker) IsSafe() bool {
	b.reconcile()

	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.engaged
}

// Status reports the full breaker state after a disk reconciliation.
func (b *Breaker) Status() Status {
	safe := b.IsSafe()

	b.mu.Lock()
	defer b.mu.Unlock()
	s := Status{
		State:        StateSafe,
		IsSafe:       safe,
		IsEngaged:    b.engaged,
		SentinelPath: b.sentinelPath,
	}
	if b.engaged {
		s.State = StateEngaged
	}
	if b.engagement != nil {
		s.EngagementTimestamp = b.engagement.Timestamp
		s.EngagementReason = b.engagement.Reason
		s.EngagementMetadata = b.engagement.Metadata
	}
	return s
}

// State returns the current state without touching disk. Monitors that poll
// frequently use IsSafe for the authoritative answer.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.engaged {
		return StateEngaged
	}
	return StateSafe
}

// reconcile adopts an on-disk engagement into the in-memory flag. Disk only
// ever wins toward ENGAGED; a missing sentinel never clears the flag.
func (b *Breaker) reconcile() {
	if b.sentinelPath == "" {
		return
	}
	b.mu.Lock()
	engaged := b.engaged
	b.mu.Unlock()
	if engaged {
		return
	}

	eng, ok := b.readSentinel()
	if !ok {
		return
	}

	b.mu.Lock()
	if !b.engaged {
		b.engaged = true
		b.engagement = eng
	}
	b.mu.Unlock()

	observ.Log("breaker_external_engagement", map[string]any{
		"sentinel": b.sentinelPath,
		"reason":   eng.Reason,
	})
	observ.IncCounter("breaker_external_engagements_total", nil)
	observ.SetGauge("breaker_engaged", 1, nil)
}

// readSentinel reports whether the sentinel exists and, if so, its
// engagement record. An unreadable or corrupt sentinel still counts as
// engaged: presence of the file is the signal, the payload is best-effort.
func (b *Breaker) readSentinel() (*Engagement, bool) {
	data, err := os.ReadFile(b.sentinelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false
		}
		observ.Log("breaker_sentinel_read_warn", map[string]any{
			"error":    err.Error(),
			"sentinel": b.sentinelPath,
		})
		return &Engagement{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Reason:    "sentinel_unreadable",
		}, true
	}

	var eng Engagement
	if err := json.Unmarshal(data, &eng); err != nil {
		observ.Log("breaker_sentinel_parse_warn", map[string]any{
			"error":    err.Error(),
			"sentinel": b.sentinelPath,
		})
		return &Engagement{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Reason:    "sentinel_unreadable",
		}, true
	}
	return &eng, true
}

// writeSentinel writes the engagement record via temp file + rename so a
// crash mid-write can never leave a half-written sentinel behind.
func (b *Breaker) writeSentinel(eng *Engagement) error {
	dir := filepath.Dir(b.sentinelPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(eng)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".sentinel-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, b.sentinelPath)
}
