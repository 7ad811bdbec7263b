// Package scanner implements the scan techniques and the orchestrator
// that drives them across ports under a concurrency and rate budget.
package scanner

import (
	"time"

	"go.uber.org/zap"

	"quantumscan/port"
)

const (
	defaultConcurrency = 100
	maxConcurrency     = 500
	defaultMaxRate     = 500
	defaultMaxTries    = 3
	defaultTimeout     = 3 * time.Second

	defaultFragMinSize  = 16
	defaultFragMaxSize  = 64
	defaultFragMinDelay = 10 * time.Millisecond
	defaultFragMaxDelay = 100 * time.Millisecond
	defaultFragTimeout  = 10 * time.Second
)

// Config is the full runtime configuration for one scan, filled in by
// the CLI layer.
type Config struct {
	Target     string
	Ports      []uint16
	Techniques []port.Technique

	Concurrency int // permit pool size, hard-capped at 500
	MaxRate     int // packets/second budget
	MaxTries    int // per-technique probe attempts

	Evasion      bool
	IPv6         bool
	ShufflePorts bool
	Discover     bool // ICMP echo liveness check before scanning

	TimeoutScan    time.Duration // raw probe reply wait
	TimeoutConnect time.Duration // TCP/TLS connect probes
	TimeoutBanner  time.Duration // banner read

	MimicProtocol string // payload choice for the mimic technique

	FragMinSize  int
	FragMaxSize  int
	FragMinDelay time.Duration
	FragMaxDelay time.Duration
	FragTimeout  time.Duration

	Interface string // capture interface override
	Logger    *zap.Logger
}

// withDefaults returns a copy with zero values replaced and the
// concurrency hard cap applied.
func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Concurrency > maxConcurrency {
		c.Concurrency = maxConcurrency
	}
	if c.MaxRate <= 0 {
		c.MaxRate = defaultMaxRate
	}
	if c.MaxTries <= 0 {
		c.MaxTries = defaultMaxTries
	}
	if c.TimeoutScan <= 0 {
		c.TimeoutScan = defaultTimeout
	}
	if c.TimeoutConnect <= 0 {
		c.TimeoutConnect = defaultTimeout
	}
	if c.TimeoutBanner <= 0 {
		c.TimeoutBanner = defaultTimeout
	}
	if c.MimicProtocol == "" {
		c.MimicProtocol = "HTTP"
	}
	if c.FragMinSize <= 0 {
		c.FragMinSize = defaultFragMinSize
	}
	if c.FragMaxSize < c.FragMinSize {
		c.FragMaxSize = c.FragMinSize
		if c.FragMaxSize < defaultFragMaxSize {
			c.FragMaxSize = defaultFragMaxSize
		}
	}
	if c.FragMinDelay <= 0 {
		c.FragMinDelay = defaultFragMinDelay
	}
	if c.FragMaxDelay < c.FragMinDelay {
		c.FragMaxDelay = defaultFragMaxDelay
	}
	if c.FragTimeout <= 0 {
		c.FragTimeout = defaultFragTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// needsRaw reports whether any requested technique requires raw-socket
// privileges.
func (c Config) needsRaw() bool {
	for _, t := range c.Techniques {
		if t.Raw() {
			return true
		}
	}
	return false
}
