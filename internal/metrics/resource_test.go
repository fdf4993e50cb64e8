package metrics

import (
	"log/slog"
	"testing"
)

func TestResourceSamplerValuesZeroBeforeFirstSample(t *testing.T) {
	t.Parallel()
	r := NewResourceSampler(slog.Default())

	memUsed, memRSS, cpuPct := r.Values()
	if memUsed != 0 || memRSS != 0 || cpuPct != 0 {
		t.Errorf("Values() before Sample() = (%v,%v,%v), want all zero", memUsed, memRSS, cpuPct)
	}
}

func TestResourceSamplerSamplePopulatesMemory(t *testing.T) {
	t.Parallel()
	r := NewResourceSampler(slog.Default())
	r.Sample()

	memUsed, memRSS, _ := r.Values()
	if memUsed <= 0 || memRSS <= 0 {
		t.Errorf("Values() after Sample() = (memUsed=%v, memRSS=%v), want both > 0 for the running test process", memUsed, memRSS)
	}
}
