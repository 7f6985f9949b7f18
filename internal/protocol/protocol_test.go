package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestParseAction(t *testing.T) {
	for _, valid := range []string{"TRADE", "PING", "GET_ACCOUNT", "GET_POSITIONS", "HEARTBEAT", "ACCOUNT_INFO"} {
		if _, err := ParseAction(valid); err != nil {
			t.Errorf("ParseAction(%q): %v", valid, err)
		}
	}
	for _, bad := range []string{"", "trade", "SELL_ALL", "TRADE "} {
		if _, err := ParseAction(bad); err == nil {
			t.Errorf("ParseAction(%q) should fail", bad)
		}
	}
}

func TestNewRequestStamps(t *testing.T) {
	a := NewRequest(ActionPing)
	b := NewRequest(ActionPing)
	if a.UUID == "" || a.Timestamp == "" {
		t.Fatalf("request not stamped: %+v", a)
	}
	if a.UUID == b.UUID {
		t.Error("uuids must be unique per request")
	}
	if !strings.HasSuffix(a.Timestamp, "Z") {
		t.Errorf("timestamp should be UTC, got %s", a.Timestamp)
	}
}

func TestValidateTrade(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Request)
		missing string
	}{
		{"ok", func(r *Request) {}, ""},
		{"no_symbol", func(r *Request) { r.Symbol = "" }, "symbol"},
		{"zero_volume", func(r *Request) { r.Volume = 0 }, "volume"},
		{"negative_volume", func(r *Request) { r.Volume = -1 }, "volume"},
		{"bad_side", func(r *Request) { r.Type = "SHORT" }, "type"},
		{"no_uuid", func(r *Request) { r.UUID = "" }, "uuid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := NewTradeRequest("EURUSD", 0.1, Buy)
			tc.mutate(&req)
			err := Validate(req)
			if tc.missing == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tc.missing {
				t.Errorf("expected missing %q, got %q", tc.missing, fe.Field)
			}
		})
	}
}

func TestValidateNonTradeSkipsOrderFields(t *testing.T) {
	if err := Validate(NewRequest(ActionGetAccount)); err != nil {
		t.Errorf("account query needs no order fields: %v", err)
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	if _, err := DecodeRequest([]byte("not json at all")); err == nil {
		t.Error("expected decode error")
	}
}

func TestResponseErr(t *testing.T) {
	if err := OK().Err(); err != nil {
		t.Errorf("ok response should map to nil, got %v", err)
	}
	err := Errf(CodeUnknownAction, "no such action %q", "FOO").Err()
	if err == nil {
		t.Fatal("error response must map to an error")
	}
	if !strings.Contains(err.Error(), string(CodeUnknownAction)) {
		t.Errorf("error should carry the code: %v", err)
	}
}

func TestTickRoundTrip(t *testing.T) {
	in := Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Volume: 7, Spread: 0.0002, Timestamp: 1756500000.25, Type: "tick"}
	data, err := EncodeTick(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeTick(data)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("roundtrip mismatch: %+v != %+v", out, in)
	}
}
