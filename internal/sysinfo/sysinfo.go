// Package sysinfo collects the host report shown to operators: uname fields,
// uptime, CPU count and usage, and memory totals.
package sysinfo

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// DefaultSampleInterval is the CPU usage measurement window.
const DefaultSampleInterval = time.Second

// Uname mirrors the fields of uname(2) that the report shows.
type Uname struct {
	System   string
	NodeName string
	Release  string
	Version  string
	Machine  string
}

// CPUTimes are cumulative jiffy counters across all CPUs.
type CPUTimes struct {
	Busy  uint64
	Total uint64
}

// Memory is reported in bytes.
type Memory struct {
	Total     uint64
	Available uint64
}

// Source reads raw host counters. The Linux implementation reads /proc;
// tests substitute a fake.
type Source interface {
	Uname() (Uname, error)
	Uptime() (time.Duration, error)
	CPUTimes() (CPUTimes, error)
	Memory() (Memory, error)
}

// Report is one point-in-time host snapshot.
type Report struct {
	Uname
	Uptime     time.Duration
	CPUCount   int
	CPUPercent float64
	MemTotal   uint64
	MemUsed    uint64
}

const mib = 1024 * 1024

// String renders the operator-facing report. Field order is fixed.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString("System Information:\n")
	fmt.Fprintf(&b, "System: %s\n", r.System)
	fmt.Fprintf(&b, "Node Name: %s\n", r.NodeName)
	fmt.Fprintf(&b, "Release: %s\n", r.Release)
	fmt.Fprintf(&b, "Version: %s\n", r.Version)
	fmt.Fprintf(&b, "Machine: %s\n", r.Machine)
	fmt.Fprintf(&b, "Uptime: %d seconds\n", int64(r.Uptime/time.Second))
	fmt.Fprintf(&b, "CPU Count: %d\n", r.CPUCount)
	fmt.Fprintf(&b, "CPU Usage: %.1f%%\n", r.CPUPercent)
	fmt.Fprintf(&b, "Memory Total: %d MB\n", r.MemTotal/mib)
	fmt.Fprintf(&b, "Memory Used: %d MB", r.MemUsed/mib)
	return b.String()
}

// Collector builds Reports from a Source. Nothing is cached between calls.
type Collector struct {
	Source         Source
	SampleInterval time.Duration
	// NumCPU defaults to runtime.NumCPU.
	NumCPU func() int
}

// NewCollector returns a Collector over the host's default Source.
func NewCollector() *Collector {
	return &Collector{Source: DefaultSource(), SampleInterval: DefaultSampleInterval}
}

// Collect samples CPU counters twice, SampleInterval apart, and blocks the
// caller for that window. A cancelled ctx aborts the wait.
func (c *Collector) Collect(ctx context.Context) (Report, error) {
	var r Report
	u, err := c.Source.Uname()
	if err != nil {
		return r, fmt.Errorf("read uname: %w", err)
	}
	r.Uname = u

	up, err := c.Source.Uptime()
	if err != nil {
		return r, fmt.Errorf("read uptime: %w", err)
	}
	r.Uptime = up

	numCPU := c.NumCPU
	if numCPU == nil {
		numCPU = runtime.NumCPU
	}
	r.CPUCount = numCPU()

	pct, err := c.cpuPercent(ctx)
	if err != nil {
		return r, err
	}
	r.CPUPercent = pct

	mem, err := c.Source.Memory()
	if err != nil {
		return r, fmt.Errorf("read memory: %w", err)
	}
	r.MemTotal = mem.Total
	if mem.Available <= mem.Total {
		r.MemUsed = mem.Total - mem.Available
	}
	return r, nil
}

func (c *Collector) cpuPercent(ctx context.Context) (float64, error) {
	interval := c.SampleInterval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	before, err := c.Source.CPUTimes()
	if err != nil {
		return 0, fmt.Errorf("read cpu times: %w", err)
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}
	after, err := c.Source.CPUTimes()
	if err != nil {
		return 0, fmt.Errorf("read cpu times: %w", err)
	}
	return busyPercent(before, after), nil
}

func busyPercent(before, after CPUTimes) float64 {
	if after.Total <= before.Total || after.Busy < before.Busy {
		return 0
	}
	pct := float64(after.Busy-before.Busy) / float64(after.Total-before.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
