// Package hostinfo samples machine-wide CPU, memory, and disk stats,
// feeding one host-tagged sample into the orchestrator's metric
// stream per Monitor poll cycle.
package hostinfo

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// Snapshot is a single host-wide resource sample.
type Snapshot struct {
	CPUPercent  float64
	MemUsedPct  float64
	DiskUsedPct float64
}

// Sample reads the current host snapshot for the filesystem rooted at
// diskPath (pass "/" for the default root).
func Sample(diskPath string) (Snapshot, error) {
	var snap Snapshot

	cpuPct, err := cpu.Percent(0, false)
	if err != nil {
		return snap, err
	}
	if len(cpuPct) > 0 {
		snap.CPUPercent = cpuPct[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return snap, err
	}
	snap.MemUsedPct = vm.UsedPercent

	du, err := disk.Usage(diskPath)
	if err != nil {
		return snap, err
	}
	snap.DiskUsedPct = du.UsedPercent

	return snap, nil
}

// MetricPoint projects a Snapshot onto the orchestrator's time-series
// shape, tagged at the host level rather than any one pipeline.
func (s Snapshot) MetricPoint(at time.Time) pipelinemodel.MetricPoint {
	return pipelinemodel.MetricPoint{
		Measurement: "host",
		Tags:        map[string]string{"level": "host"},
		Fields: map[string]interface{}{
			"cpu_percent":   s.CPUPercent,
			"mem_used_pct":  s.MemUsedPct,
			"disk_used_pct": s.DiskUsedPct,
		},
		Time: at,
	}
}
