// Package ratelimit protects the accept loop from connection floods,
// grounded in the teacher's ConnectionRateLimiter: a global token
// bucket plus one per-IP bucket, both from golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds the token-bucket parameters for both limiting levels.
type Config struct {
	IPBurst int
	IPRate  float64
	IPTTL   time.Duration

	GlobalBurst int
	GlobalRate  float64

	Logger zerolog.Logger
}

// ipLimiterEntry pairs a per-IP limiter with its last-seen time so the
// cleanup loop can evict IPs that stopped connecting long ago.
type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// AcceptLimiter decides whether the listener should accept a new
// connection from a given remote IP.
type AcceptLimiter struct {
	ipLimiters map[string]*ipLimiterEntry
	ipMu       sync.RWMutex
	ipBurst    int
	ipRate     float64
	ipTTL      time.Duration

	globalLimiter *rate.Limiter
	globalBurst   int
	globalRate    float64

	onRejected func(reason string)

	logger zerolog.Logger

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// New builds an AcceptLimiter with the given configuration, applying
// the teacher's defaults for any zero field. onRejected, if non-nil, is
// called with "global" or "per_ip" each time a connection is refused —
// callers wire it to a metrics counter.
func New(cfg Config, onRejected func(reason string)) *AcceptLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 10
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 1.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}

	l := &AcceptLimiter{
		ipLimiters:    make(map[string]*ipLimiterEntry),
		ipBurst:       cfg.IPBurst,
		ipRate:        cfg.IPRate,
		ipTTL:         cfg.IPTTL,
		globalLimiter: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		globalBurst:   cfg.GlobalBurst,
		globalRate:    cfg.GlobalRate,
		onRejected:    onRejected,
		logger:        cfg.Logger.With().Str("component", "accept_limiter").Logger(),
		stopCleanup:   make(chan struct{}),
	}

	l.cleanupTicker = time.NewTicker(time.Minute)
	go l.cleanupLoop()

	l.logger.Info().
		Int("ip_burst", cfg.IPBurst).
		Float64("ip_rate", cfg.IPRate).
		Dur("ip_ttl", cfg.IPTTL).
		Int("global_burst", cfg.GlobalBurst).
		Float64("global_rate", cfg.GlobalRate).
		Msg("accept limiter initialized")

	return l
}

// Allow checks the global bucket first, then the per-IP bucket. Both
// must have a token available for the connection to proceed.
func (l *AcceptLimiter) Allow(ip string) bool {
	if !l.globalLimiter.Allow() {
		l.logger.Debug().Str("ip", ip).Msg("connection rejected: global rate limit exceeded")
		if l.onRejected != nil {
			l.onRejected("global")
		}
		return false
	}

	limiter := l.ipLimiter(ip)
	if !limiter.Allow() {
		l.logger.Debug().Str("ip", ip).Msg("connection rejected: per-IP rate limit exceeded")
		if l.onRejected != nil {
			l.onRejected("per_ip")
		}
		return false
	}

	return true
}

func (l *AcceptLimiter) ipLimiter(ip string) *rate.Limiter {
	l.ipMu.RLock()
	entry, ok := l.ipLimiters[ip]
	l.ipMu.RUnlock()
	if ok {
		l.ipMu.Lock()
		entry.lastAccess = time.Now()
		l.ipMu.Unlock()
		return entry.limiter
	}

	l.ipMu.Lock()
	defer l.ipMu.Unlock()

	if entry, ok = l.ipLimiters[ip]; ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(l.ipRate), l.ipBurst)
	l.ipLimiters[ip] = &ipLimiterEntry{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (l *AcceptLimiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.cleanup()
		case <-l.stopCleanup:
			l.cleanupTicker.Stop()
			return
		}
	}
}

func (l *AcceptLimiter) cleanup() {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()

	now := time.Now()
	for ip, entry := range l.ipLimiters {
		if now.Sub(entry.lastAccess) > l.ipTTL {
			delete(l.ipLimiters, ip)
		}
	}
}

// Stop ends the cleanup goroutine. Call during broker shutdown.
func (l *AcceptLimiter) Stop() {
	close(l.stopCleanup)
}

// Stats reports current tracking state for diagnostics endpoints.
func (l *AcceptLimiter) Stats() map[string]any {
	l.ipMu.RLock()
	tracked := len(l.ipLimiters)
	l.ipMu.RUnlock()

	return map[string]any{
		"tracked_ips":  tracked,
		"ip_burst":     l.ipBurst,
		"ip_rate":      l.ipRate,
		"ip_ttl":       l.ipTTL.String(),
		"global_burst": l.globalBurst,
		"global_rate":  l.globalRate,
	}
}
