package monitor

import (
	"context"
	"os"
	"time"

	"github.com/odin-msg/broker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// Sampler periodically records process CPU and memory usage into a
// metrics.Registry, the way the teacher's CPUMonitor feeds its
// resource-aware admission checks — without the admission checks
// themselves, which belong to a different domain than a pub/sub
// broker.
type Sampler struct {
	interval time.Duration
	met      *metrics.Registry
	log      zerolog.Logger

	memLimit int64
	proc     *process.Process
}

// NewSampler builds a Sampler. If the current process's gopsutil
// handle can't be obtained, a warning is logged rather than failing
// startup; CPU samples then report system-wide usage from gopsutil's
// cpu package and memory samples are skipped.
func NewSampler(interval time.Duration, met *metrics.Registry, log zerolog.Logger) *Sampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("resource monitor: could not open self process handle")
		proc = nil
	}

	limit := memoryLimit()
	log.Info().Int64("memory_limit_bytes", limit).Msg("resource monitor initialized")

	return &Sampler{
		interval: interval,
		met:      met,
		log:      log,
		memLimit: limit,
		proc:     proc,
	}
}

// Run samples on interval until ctx is canceled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	if s.proc != nil {
		if pct, err := s.proc.CPUPercent(); err == nil {
			s.met.CPUPercent(pct)
		}
		if mem, err := s.proc.MemoryInfo(); err == nil {
			s.met.MemoryUsage(int64(mem.RSS), s.memLimit)
		}
	} else if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.met.CPUPercent(pct[0])
	}
}
