// Package journal keeps a JSONL record of every order dispatch so a crash
// between send and reply leaves evidence: a "sent" entry with no terminal
// phase is an order whose outcome nobody confirmed.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mt5crs/gateway/internal/observ"
	"github.com/mt5crs/gateway/internal/protocol"
)

// Dispatch phases. sent is written before the network send; exactly one of
// the others should follow it.
const (
	PhaseSent        = "sent"
	PhaseConfirmed   = "confirmed"
	PhaseUnconfirmed = "unconfirmed"
	PhaseRejected    = "rejected"
)

// Entry is one journal line.
type Entry struct {
	UUID   string    `json:"uuid"`
	Phase  string    `json:"phase"`
	Symbol string    `json:"symbol,omitempty"`
	Type   string    `json:"type,omitempty"`
	Volume float64   `json:"volume,omitempty"`
	Ticket int64     `json:"ticket,omitempty"`
	Code   string    `json:"code,omitempty"`
	TS     time.Time `json:"ts"`
}

// Journal appends dispatch records to a JSONL file. Append failures are
// logged, never returned to the dispatch path: journaling is evidence, not
// a gate.
type Journal struct {
	mu   sync.Mutex
	path string
}

func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Journal{path: path}, nil
}

// Sent records an order about to go over the wire.
func (j *Journal) Sent(req protocol.Request) {
	j.append(Entry{
		UUID:   req.UUID,
		Phase:  PhaseSent,
		Symbol: req.Symbol,
		Type:   string(req.Type),
		Volume: req.Volume,
		TS:     time.Now().UTC(),
	})
}

// Confirmed records a broker-acknowledged order.
func (j *Journal) Confirmed(uuid string, ticket int64) {
	j.append(Entry{UUID: uuid, Phase: PhaseConfirmed, Ticket: ticket, TS: time.Now().UTC()})
}

// Unconfirmed records a reply timeout: outcome unknown.
func (j *Journal) Unconfirmed(uuid string) {
	j.append(Entry{UUID: uuid, Phase: PhaseUnconfirmed, TS: time.Now().UTC()})
}

// Rejected records a structured error reply.
func (j *Journal) Rejected(uuid string, code protocol.ErrorCode) {
	j.append(Entry{UUID: uuid, Phase: PhaseRejected, Code: string(code), TS: time.Now().UTC()})
}

func (j *Journal) append(e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		observ.Log("journal_marshal_warn", map[string]any{"error": err.Error()})
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		observ.Log("journal_open_warn", map[string]any{"error": err.Error(), "path": j.path})
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		observ.Log("journal_write_warn", map[string]any{"error": err.Error(), "path": j.path})
	}
}

// Reconcile scans the journal and returns the sent entries that never got a
// terminal phase. These are orders that may or may not have executed; the
// caller decides what to do about them (the engine entrypoint engages the
// breaker and leaves the decision to a human).
func (j *Journal) Reconcile() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	sent := map[string]Entry{}
	order := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			observ.Log("journal_parse_warn", map[string]any{"error": err.Error()})
			continue
		}
		switch e.Phase {
		case PhaseSent:
			if _, seen := sent[e.UUID]; !seen {
				order = append(order, e.UUID)
			}
			sent[e.UUID] = e
		case PhaseConfirmed, PhaseUnconfirmed, PhaseRejected:
			delete(sent, e.UUID)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var dangling []Entry
	for _, id := range order {
		if e, ok := sent[id]; ok {
			dangling = append(dangling, e)
		}
	}
	return dangling, nil
}
