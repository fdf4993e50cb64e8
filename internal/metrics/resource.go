package metrics

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultResourceSample matches the spec's system_sample_s default.
const DefaultResourceSample = 10 * time.Second

// ResourceSampler polls this process's memory and CPU usage on its own
// goroutine, well off the hot path that handles venue messages.
type ResourceSampler struct {
	proc        *process.Process
	memUsedMB   uint64 // bits of a float64
	memRSSMB    uint64 // bits of a float64
	cpuPercent  uint64 // bits of a float64
	log         *slog.Logger
}

// NewResourceSampler looks up the current process by PID. A failure here
// (missing /proc on an unsupported platform) degrades to zeroed readings
// rather than aborting startup.
func NewResourceSampler(log *slog.Logger) *ResourceSampler {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("resource sampler: process lookup failed, readings will stay at zero", "error", err)
		p = nil
	}
	return &ResourceSampler{proc: p, log: log}
}

// Sample refreshes the cached memory/CPU readings. Safe to call directly
// in tests; Run calls it on a ticker in production.
func (r *ResourceSampler) Sample() {
	if r.proc == nil {
		return
	}
	if mi, err := r.proc.MemoryInfo(); err == nil {
		atomic.StoreUint64(&r.memUsedMB, math.Float64bits(float64(mi.VMS)/1024/1024))
		atomic.StoreUint64(&r.memRSSMB, math.Float64bits(float64(mi.RSS)/1024/1024))
	} else {
		r.log.Debug("resource sampler: memory read failed", "error", err)
	}
	if pct, err := r.proc.CPUPercent(); err == nil {
		atomic.StoreUint64(&r.cpuPercent, math.Float64bits(pct))
	} else {
		r.log.Debug("resource sampler: cpu read failed", "error", err)
	}
}

// Values returns the last sampled memory (virtual, RSS) in MB and CPU
// usage as a percentage of one core.
func (r *ResourceSampler) Values() (memUsedMB, memRSSMB, cpuPct float64) {
	return math.Float64frombits(atomic.LoadUint64(&r.memUsedMB)),
		math.Float64frombits(atomic.LoadUint64(&r.memRSSMB)),
		math.Float64frombits(atomic.LoadUint64(&r.cpuPercent))
}

// Run samples on the given interval until ctx is cancelled.
func (r *ResourceSampler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultResourceSample
	}
	r.Sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sample()
		}
	}
}
