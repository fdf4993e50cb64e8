package metrics

import (
	"testing"
	"time"
)

func TestComputeSnapshotReportsTotalsAndGauges(t *testing.T) {
	t.Parallel()
	c := New(nil)

	for i := 0; i < 10; i++ {
		c.RecordMessage(100)
	}
	c.RecordTrade()
	c.RecordUpdate()
	c.RecordReconnect()
	c.SetConnections(3)

	snap := c.ComputeSnapshot()
	if snap.Type != "metrics" {
		t.Errorf("Type = %q, want %q", snap.Type, "metrics")
	}
	if snap.TotalMessages != 10 {
		t.Errorf("TotalMessages = %d, want 10", snap.TotalMessages)
	}
	if snap.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", snap.TotalTrades)
	}
	if snap.TotalUpdates != 1 {
		t.Errorf("TotalUpdates = %d, want 1", snap.TotalUpdates)
	}
	if snap.WebsocketReconnects != 1 {
		t.Errorf("WebsocketReconnects = %d, want 1", snap.WebsocketReconnects)
	}
	if snap.ActiveConnections != 3 {
		t.Errorf("ActiveConnections = %d, want 3", snap.ActiveConnections)
	}
	if snap.BytesReceived != 1000 {
		t.Errorf("BytesReceived = %d, want 1000", snap.BytesReceived)
	}
}

func TestComputeSnapshotSecondCallRatesResetAgainstFirst(t *testing.T) {
	t.Parallel()
	c := New(nil)
	c.RecordMessage(10)
	first := c.ComputeSnapshot()
	if first.TotalMessages != 1 {
		t.Fatalf("first TotalMessages = %d, want 1", first.TotalMessages)
	}

	// No new messages recorded: the second snapshot's rate window starts
	// clean, so its per-second rate is zero even though totals persist.
	second := c.ComputeSnapshot()
	if second.TotalMessages != 1 {
		t.Errorf("second TotalMessages = %d, want 1 (cumulative)", second.TotalMessages)
	}
	if second.MessagesPerSecond != 0 {
		t.Errorf("second MessagesPerSecond = %d, want 0 (no new messages since first snapshot)", second.MessagesPerSecond)
	}
}

func TestTrackIncrementsActiveSymbols(t *testing.T) {
	t.Parallel()
	c := New(nil)
	c.Track("binance:BTCUSDT")
	c.Track("binance:BTCUSDT") // same key twice: still one active symbol
	c.Track("bybit:ETHUSDT")

	snap := c.ComputeSnapshot()
	if snap.ActiveSymbols != 2 {
		t.Errorf("ActiveSymbols = %d, want 2", snap.ActiveSymbols)
	}
}

func TestPerSymbolBreakdownReflectsRecordedActivity(t *testing.T) {
	t.Parallel()
	c := New(nil)

	key := "kraken:BTCUSDT"
	c.RecordSymbolUpdate(key, 500)
	c.RecordSymbolUpdate(key, 1500)
	c.RecordSymbolTrade(key)
	c.RecordSymbolSpread(key, 0.05)

	snap := c.ComputeSnapshot()
	sm, ok := snap.Symbols[key]
	if !ok {
		t.Fatalf("Symbols[%q] missing from snapshot", key)
	}
	if sm.LatencyAvgUs != 1000 {
		t.Errorf("LatencyAvgUs = %v, want 1000", sm.LatencyAvgUs)
	}
	if sm.SpreadBps == nil {
		t.Fatal("SpreadBps should be populated after RecordSymbolSpread")
	}
	if *sm.SpreadBps != 5 {
		t.Errorf("SpreadBps = %v, want 5", *sm.SpreadBps)
	}
}

func TestComputeSnapshotWithNoSymbolActivityOmitsSymbolsMap(t *testing.T) {
	t.Parallel()
	c := New(nil)
	snap := c.ComputeSnapshot()
	if snap.Symbols != nil {
		t.Errorf("Symbols = %v, want nil when nothing was ever recorded", snap.Symbols)
	}
}

func TestSnapshotReturnsCachedResultWithoutResettingBaseline(t *testing.T) {
	t.Parallel()
	c := New(nil)
	c.RecordMessage(10)

	before := c.Snapshot()
	if before.TotalMessages != 0 {
		t.Errorf("TotalMessages before any ComputeSnapshot = %d, want 0", before.TotalMessages)
	}

	computed := c.ComputeSnapshot()
	if computed.TotalMessages != 1 {
		t.Fatalf("ComputeSnapshot TotalMessages = %d, want 1", computed.TotalMessages)
	}

	// Snapshot must return the cached result from ComputeSnapshot without
	// itself touching the rate-counter baseline.
	after := c.Snapshot()
	if after.TotalMessages != 1 {
		t.Errorf("Snapshot after ComputeSnapshot TotalMessages = %d, want 1", after.TotalMessages)
	}

	again := c.Snapshot()
	if again.TotalMessages != after.TotalMessages || again.MessagesPerSecond != after.MessagesPerSecond {
		t.Errorf("repeated Snapshot calls should return the same cached value: %+v vs %+v", again, after)
	}
}

func TestRunPercentileRefresherStopsOnSignal(t *testing.T) {
	t.Parallel()
	c := New(nil)
	c.RecordLatency(123)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.RunPercentileRefresher(stop, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPercentileRefresher did not stop after signal")
	}
}
