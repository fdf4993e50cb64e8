package venue

import (
	"testing"

	"depthfeed/pkg/types"
)

func TestBybitParseSnapshot(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","data":{"s":"BTCUSDT","b":[["100.00","1.5"]],"a":[["101.00","1.0"]],"u":42}}`)

	evt, err := NewBybit().Parse(raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if evt == nil {
		t.Fatal("expected a non-nil event")
	}
	if !evt.Depth.Snapshot {
		t.Error("expected Snapshot=true")
	}
	if evt.Depth.FinalUpdateID != 42 {
		t.Errorf("FinalUpdateID = %d, want 42", evt.Depth.FinalUpdateID)
	}
}

func TestBybitParseTrade(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"topic":"publicTrade.BTCUSDT","data":[{"p":"50000.00","v":"0.1","S":"Sell","T":1700000000000}]}`)

	evt, err := NewBybit().Parse(raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if evt.Kind != types.EventTrade {
		t.Fatalf("Kind = %v, want EventTrade", evt.Kind)
	}
	if evt.Trade.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want BTCUSDT", evt.Trade.Symbol)
	}
	if evt.Trade.Side != types.TradeSell {
		t.Errorf("Side = %v, want Sell", evt.Trade.Side)
	}
}

func TestBybitParseIgnoresSubscriptionAck(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"success":true,"ret_msg":"","op":"subscribe","conn_id":"abc"}`)

	evt, err := NewBybit().Parse(raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if evt != nil {
		t.Errorf("expected nil event for subscription ack, got %+v", evt)
	}
}
