// Package monitor samples process resource usage and exports it as
// metrics, grounded in the teacher's cgroup.go and
// internal/single/platform/cgroup_cpu.go: CPU and resident memory come
// from gopsutil, and the memory limit is read from the cgroup files
// when running in a container.
package monitor

import (
	"os"
	"strconv"
	"strings"
)

// memoryLimit returns the container memory limit in bytes, 0 if
// unconstrained or not running under a cgroup.
func memoryLimit() int64 {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limit := strings.TrimSpace(string(data))
		if limit != "max" {
			if v, err := strconv.ParseInt(limit, 10, 64); err == nil {
				return v
			}
		}
		return 0
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			return v
		}
	}

	return 0
}
