//go:build !linux

package sysinfo

import (
	"errors"
	"os"
	"runtime"
	"time"
)

var errUnsupported = errors.New("not supported on " + runtime.GOOS)

// fallbackSource reports what the Go runtime knows and zeroes the rest.
type fallbackSource struct {
	started time.Time
}

// DefaultSource returns a Source with hostname and architecture only.
func DefaultSource() Source { return fallbackSource{started: time.Now()} }

func (fallbackSource) Uname() (Uname, error) {
	host, _ := os.Hostname()
	return Uname{System: runtime.GOOS, NodeName: host, Machine: runtime.GOARCH}, nil
}

func (f fallbackSource) Uptime() (time.Duration, error) { return time.Since(f.started), nil }

func (fallbackSource) CPUTimes() (CPUTimes, error) { return CPUTimes{}, nil }

func (fallbackSource) Memory() (Memory, error) { return Memory{}, errUnsupported }
