//go:build linux

package sysinfo

import (
	"fmt"
	"time"

	"github.com/c9s/goprocinfo/linux"
	"golang.org/x/sys/unix"
)

// ProcSource reads counters from procfs. Root defaults to /proc.
type ProcSource struct {
	Root string
}

// DefaultSource returns the procfs-backed Source.
func DefaultSource() Source { return ProcSource{Root: "/proc"} }

func (p ProcSource) path(name string) string {
	root := p.Root
	if root == "" {
		root = "/proc"
	}
	return root + "/" + name
}

func (ProcSource) Uname() (Uname, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return Uname{}, err
	}
	return Uname{
		System:   unix.ByteSliceToString(u.Sysname[:]),
		NodeName: unix.ByteSliceToString(u.Nodename[:]),
		Release:  unix.ByteSliceToString(u.Release[:]),
		Version:  unix.ByteSliceToString(u.Version[:]),
		Machine:  unix.ByteSliceToString(u.Machine[:]),
	}, nil
}

func (p ProcSource) Uptime() (time.Duration, error) {
	up, err := linux.ReadUptime(p.path("uptime"))
	if err != nil {
		return 0, err
	}
	return time.Duration(up.Total * float64(time.Second)), nil
}

func (p ProcSource) CPUTimes() (CPUTimes, error) {
	st, err := linux.ReadStat(p.path("stat"))
	if err != nil {
		return CPUTimes{}, err
	}
	all := st.CPUStatAll
	idle := all.Idle + all.IOWait
	// Guest time is already counted in User and Nice.
	total := all.User + all.Nice + all.System + all.Idle + all.IOWait +
		all.IRQ + all.SoftIRQ + all.Steal
	return CPUTimes{Busy: total - idle, Total: total}, nil
}

func (p ProcSource) Memory() (Memory, error) {
	mi, err := linux.ReadMemInfo(p.path("meminfo"))
	if err != nil {
		return Memory{}, err
	}
	if mi.MemTotal == 0 {
		return Memory{}, fmt.Errorf("meminfo: MemTotal missing")
	}
	avail := mi.MemAvailable
	if avail == 0 {
		avail = mi.MemFree + mi.Buffers + mi.Cached
	}
	return Memory{Total: mi.MemTotal * 1024, Available: avail * 1024}, nil
}
