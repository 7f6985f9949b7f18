// Package protocol defines the JSON message contract spoken between the
// trading host and the MT5 terminal: a command request/response pair carried
// over ZeroMQ REQ/REP, and a one-way tick document for the PUB/SUB feed.
// One JSON document per message frame, UTF-8.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the closed set of commands the MT5 side accepts. Anything else
// is rejected with UNKNOWN_ACTION; there is no free-form dispatch.
type Action string

const (
	ActionTrade        Action = "TRADE"
	ActionPing         Action = "PING"
	ActionGetAccount   Action = "GET_ACCOUNT"
	ActionGetPositions Action = "GET_POSITIONS"
	ActionHeartbeat    Action = "HEARTBEAT"
	ActionAccountInfo  Action = "ACCOUNT_INFO"
)

var actions = map[Action]bool{
	ActionTrade:        true,
	ActionPing:         true,
	ActionGetAccount:   true,
	ActionGetPositions: true,
	ActionHeartbeat:    true,
	ActionAccountInfo:  true,
}

// ParseAction validates a wire action string against the closed set.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !actions[a] {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// TradeType is the order side for TRADE requests.
type TradeType string

const (
	Buy  TradeType = "BUY"
	Sell TradeType = "SELL"
)

// Request is one command frame. UUID and Timestamp are set by the caller on
// every request so the receiving side can correlate, audit, and deduplicate.
type Request struct {
	Action    Action    `json:"action"`
	UUID      string    `json:"uuid"`
	Timestamp string    `json:"timestamp"`
	Symbol    string    `json:"symbol,omitempty"`
	Volume    float64   `json:"volume,omitempty"`
	Type      TradeType `json:"type,omitempty"`
}

// NewRequest stamps a request with a fresh uuid and a UTC timestamp.
func NewRequest(action Action) Request {
	return Request{
		Action:    action,
		UUID:      uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewTradeRequest builds a stamped TRADE request.
func NewTradeRequest(symbol string, volume float64, side TradeType) Request {
	r := NewRequest(ActionTrade)
	r.Symbol = symbol
	r.Volume = volume
	r.Type = side
	return r
}

// ErrorCode is the fixed vocabulary callers branch on, distinct from the
// free-text message.
type ErrorCode string

const (
	CodeInvalidJSON   ErrorCode = "INVALID_JSON"
	CodeUnknownAction ErrorCode = "UNKNOWN_ACTION"
	CodeMissingField  ErrorCode = "MISSING_FIELD"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeTradeRejected ErrorCode = "TRADE_REJECTED"
	CodeInternal      ErrorCode = "INTERNAL"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Position is one open position as reported by GET_POSITIONS.
type Position struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Volume    float64 `json:"volume"`
	Type      string  `json:"type"`
	PriceOpen float64 `json:"price_open"`
	Profit    float64 `json:"profit"`
}

// Response is one reply frame. Fields beyond Status are action-dependent.
type Response struct {
	Status     string     `json:"status"`
	ServerTime string     `json:"server_time,omitempty"`
	LatencyMs  float64    `json:"latency_ms,omitempty"`
	Balance    float64    `json:"balance,omitempty"`
	Equity     float64    `json:"equity,omitempty"`
	Positions  []Position `json:"positions,omitempty"`
	Ticket     int64      `json:"ticket,omitempty"`
	ErrorCode  ErrorCode  `json:"error_code,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// OK returns a success response stamped with the server time.
func OK() Response {
	return Response{
		Status:     StatusOK,
		ServerTime: time.Now().UTC().Format(time.RFC3339),
	}
}

// Errf builds an error response with a code and a human-readable message.
func Errf(code ErrorCode, format string, args ...any) Response {
	return Response{
		Status:    StatusError,
		ErrorCode: code,
		Error:     fmt.Sprintf(format, args...),
	}
}

// Err maps an error response to a Go error; nil for ok responses.
func (r Response) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	if r.Error != "" {
		return fmt.Errorf("gateway error %s: %s", r.ErrorCode, r.Error)
	}
	return fmt.Errorf("gateway error %s", r.ErrorCode)
}

// FieldError reports a request missing an action-dependent required field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Validate enforces action-dependent required fields on a request.
func Validate(r Request) error {
	if r.UUID == "" {
		return &FieldError{Field: "uuid"}
	}
	if r.Timestamp == "" {
		return &FieldError{Field: "timestamp"}
	}
	if r.Action == ActionTrade {
		if r.Symbol == "" {
			return &FieldError{Field: "symbol"}
		}
		if r.Volume <= 0 {
			return &FieldError{Field: "volume"}
		}
		if r.Type != Buy && r.Type != Sell {
			return &FieldError{Field: "type"}
		}
	}
	return nil
}

// Tick is one market-data document on the PUB/SUB channel. Timestamp is
// unix epoch seconds; Type is always "tick".
type Tick struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Volume    int64   `json:"volume"`
	Spread    float64 `json:"spread"`
	Timestamp float64 `json:"timestamp"`
	Type      string  `json:"type"`
}

func EncodeRequest(r Request) ([]byte, error) { return json.Marshal(r) }

func EncodeResponse(r Response) ([]byte, error) { return json.Marshal(r) }

func EncodeTick(t Tick) ([]byte, error) { return json.Marshal(t) }

func DecodeRequest(b []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return r, nil
}

func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return r, nil
}

func DecodeTick(b []byte) (Tick, error) {
	var t Tick
	if err := json.Unmarshal(b, &t); err != nil {
		return Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	return t, nil
}
