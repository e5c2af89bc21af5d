package supervisor

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// sampleRSS reads a process's resident set size via gopsutil, the same
// library hostinfo uses for host-wide memory sampling.
func sampleRSS(pid int) (int64, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("supervisor: invalid pid %d", pid)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return int64(mem.RSS), nil
}
