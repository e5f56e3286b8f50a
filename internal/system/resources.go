package system

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time view of host and process memory
type Snapshot struct {
	LogicalCPUs    int     `json:"logical_cpus"`
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
	ProcessRSS     uint64  `json:"process_rss"`
}

// DefaultWorkers returns the logical CPU count, falling back to the
// runtime's view when the host cannot be queried
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// ProcessRSS returns the resident set size of the current process, or 0
// when it cannot be read
func ProcessRSS() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

// Sample collects a Snapshot. Fields that cannot be read are left zero.
func Sample() Snapshot {
	s := Snapshot{
		LogicalCPUs: DefaultWorkers(),
		ProcessRSS:  ProcessRSS(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.TotalBytes = vm.Total
		s.AvailableBytes = vm.Available
		s.UsedPercent = vm.UsedPercent
	}
	return s
}
