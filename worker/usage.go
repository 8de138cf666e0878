package worker

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is the resource footprint an agent reports with each heartbeat.
type Usage struct {
	CPUPercent    float64 `cbor:"cpu_percent"    json:"cpu_percent"`
	MemoryBytes   uint64  `cbor:"memory_bytes"   json:"memory_bytes"`
	MemoryPercent float32 `cbor:"memory_percent" json:"memory_percent"`
	ThreadCount   int32   `cbor:"thread_count"   json:"thread_count"`
	ActiveTasks   int     `cbor:"active_tasks"   json:"active_tasks"`
	Capacity      int     `cbor:"capacity"       json:"capacity"`
	UptimeSeconds int64   `cbor:"uptime_seconds" json:"uptime_seconds"`
}

type usageMonitor struct {
	proc      *process.Process
	startTime time.Time
}

func newUsageMonitor() (*usageMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	return &usageMonitor{
		proc:      proc,
		startTime: time.Now(),
	}, nil
}

// Collect samples the process. Metrics the platform cannot report stay zero.
func (m *usageMonitor) Collect(ctx context.Context) Usage {
	u := Usage{
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
	}

	if cpuPercent, err := m.proc.CPUPercentWithContext(ctx); err == nil {
		u.CPUPercent = cpuPercent
	}
	if memInfo, err := m.proc.MemoryInfoWithContext(ctx); err == nil {
		u.MemoryBytes = memInfo.RSS
	}
	if memPercent, err := m.proc.MemoryPercentWithContext(ctx); err == nil {
		u.MemoryPercent = memPercent
	}
	if numThreads, err := m.proc.NumThreadsWithContext(ctx); err == nil {
		u.ThreadCount = numThreads
	}

	return u
}
