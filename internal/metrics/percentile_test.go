package metrics

import "testing"

func TestPercentileCacheRefreshComputesOrderStatistics(t *testing.T) {
	t.Parallel()
	ring := NewRing(16)
	for i := uint64(1); i <= 10; i++ {
		ring.Record(i * 10) // 10,20,...,100
	}

	cache := NewPercentileCache(ring)
	cache.Refresh()

	avg, min, max, p50, p95, p99 := cache.Values()
	if p50 != 50 {
		t.Errorf("p50 = %d, want 50", p50)
	}
	if p95 != 100 {
		t.Errorf("p95 = %d, want 100", p95)
	}
	if p99 != 100 {
		t.Errorf("p99 = %d, want 100", p99)
	}
	if avg != 55 {
		t.Errorf("avg = %v, want 55", avg)
	}
	if min != 10 {
		t.Errorf("min = %d, want 10", min)
	}
	if max != 100 {
		t.Errorf("max = %d, want 100", max)
	}
}

func TestPercentileCacheValuesZeroBeforeFirstRefresh(t *testing.T) {
	t.Parallel()
	ring := NewRing(16)
	ring.Record(42)
	cache := NewPercentileCache(ring)

	avg, min, max, p50, p95, p99 := cache.Values()
	if avg != 0 || min != 0 || max != 0 || p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("Values() before Refresh = (%v,%d,%d,%d,%d,%d), want all zero", avg, min, max, p50, p95, p99)
	}
}

func TestPercentileCacheRefreshOnEmptyRingIsNoop(t *testing.T) {
	t.Parallel()
	ring := NewRing(16)
	cache := NewPercentileCache(ring)
	cache.Refresh()

	avg, min, max, p50, p95, p99 := cache.Values()
	if avg != 0 || min != 0 || max != 0 || p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("Values() after Refresh on empty ring = (%v,%d,%d,%d,%d,%d), want all zero", avg, min, max, p50, p95, p99)
	}
}

func TestSelectPercentileSingleValue(t *testing.T) {
	t.Parallel()
	data := []uint64{7}
	if got := selectPercentile(data, 0.99); got != 7 {
		t.Errorf("selectPercentile = %d, want 7", got)
	}
}
