package router

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// LoadSnapshot is a point-in-time system load reading. Zero values mean
// the reading was unavailable.
type LoadSnapshot struct {
	Load1          float64 `json:"load1"`
	Load5          float64 `json:"load5"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

// LoadProbe reads system load for the model-assisted routing prompt and
// the system API. Read failures are swallowed: load is advisory.
type LoadProbe struct{}

// NewLoadProbe creates a load probe.
func NewLoadProbe() *LoadProbe { return &LoadProbe{} }

// Snapshot returns the current load averages and memory pressure.
func (p *LoadProbe) Snapshot() LoadSnapshot {
	var s LoadSnapshot
	if avg, err := load.Avg(); err == nil {
		s.Load1 = avg.Load1
		s.Load5 = avg.Load5
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsedPercent = vm.UsedPercent
	}
	return s
}

// Digest renders the snapshot as a terse prompt fragment.
func (s LoadSnapshot) Digest() string {
	return fmt.Sprintf("load1=%.2f load5=%.2f mem=%.0f%%", s.Load1, s.Load5, s.MemUsedPercent)
}
