package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"quantumscan/detector"
	"quantumscan/netutil"
	"quantumscan/packet"
	"quantumscan/port"
	"quantumscan/probe"
	"quantumscan/sigs"
)

// ErrNeedPriv is returned before any packet is built when a raw-socket
// technique was requested without the privileges to open raw sockets.
var ErrNeedPriv = errors.New("raw-socket techniques require elevated privileges")

// Manager orchestrates one scan: it resolves the target, drives every
// technique across every port under the permit pool, and owns the
// results store.
type Manager struct {
	cfg Config
	log *zap.Logger

	// Engine overrides the raw-socket probe engine; tests inject a
	// scripted engine here. When nil, Run opens a real one (and runs
	// the privilege check first).
	Engine probe.Engine

	eng     probe.Engine
	builder *packet.Builder
	store   *Store
	limiter *AdaptiveLimiter
	tgt     *netutil.Target
}

// NewManager creates a Manager with defaults applied.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// Run performs the scan and returns the frozen port→result mapping.
// Only resolution and privilege failures surface as errors; everything
// else is absorbed into per-port states, so every requested port has a
// result on return.
func (m *Manager) Run(ctx context.Context) (map[uint16]*port.PortResult, error) {
	if m.cfg.Target == "" {
		return nil, errors.New("no target configured")
	}
	if len(m.cfg.Ports) == 0 {
		return nil, errors.New("no ports to scan")
	}
	techniques := m.cfg.Techniques
	if len(techniques) == 0 {
		techniques = []port.Technique{port.SYN}
		m.cfg.Techniques = techniques
	}

	tgt, err := netutil.Resolve(m.cfg.Target, m.cfg.IPv6)
	if err != nil {
		return nil, err
	}
	m.tgt = tgt
	m.log.Info("starting scan",
		zap.String("target", m.cfg.Target),
		zap.String("ip", tgt.IP.String()),
		zap.Int("ports", len(m.cfg.Ports)),
		zap.Int("techniques", len(techniques)))

	// Privilege gate: fail fast, before any packet is constructed.
	if m.Engine == nil && m.cfg.needsRaw() {
		ok, privErr := netutil.CanOpenRawSocket()
		if privErr != nil || !ok {
			return nil, ErrNeedPriv
		}
	}

	if m.cfg.Discover {
		if !netutil.Ping(ctx, tgt, m.cfg.TimeoutScan) {
			return nil, fmt.Errorf("host %s did not answer ICMP echo", tgt.IP)
		}
	}

	ports := make([]uint16, len(m.cfg.Ports))
	copy(ports, m.cfg.Ports)
	if m.cfg.ShufflePorts {
		port.Shuffle(ports, shuffleSource())
	}

	m.store = NewStore(ports)
	m.limiter = NewAdaptiveLimiter(m.cfg.MaxRate)
	m.builder = packet.NewBuilder(tgt.IP, tgt.LocalIP, m.cfg.IPv6, m.cfg.Evasion)

	m.eng = m.Engine
	if m.eng == nil && m.cfg.needsRaw() {
		eng, engErr := probe.NewEngine(probe.Config{
			TargetIP:  tgt.IP,
			LocalIP:   tgt.LocalIP,
			IPv6:      m.cfg.IPv6,
			Interface: m.cfg.Interface,
			MaxRate:   m.cfg.MaxRate,
			Workers:   m.cfg.Concurrency,
			Logger:    m.log,
		})
		if engErr != nil {
			return nil, fmt.Errorf("probe engine: %w", engErr)
		}
		defer eng.Close()
		m.eng = eng
	}

	sem := semaphore.NewWeighted(int64(m.cfg.Concurrency))
	var wg sync.WaitGroup
	for _, p := range ports {
		wg.Add(1)
		go func(p uint16) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			m.scanPort(ctx, p)
		}(p)
	}
	wg.Wait()

	m.log.Info("scan complete", zap.Int("ports", len(ports)))
	return m.store.Results(), nil
}

func shuffleSource() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// scanPort runs the selected techniques sequentially for one port, in
// caller order, pacing through the adaptive limiter between each, then
// enriches the result exactly once if anything came back open.
func (m *Manager) scanPort(ctx context.Context, p uint16) {
	for _, tech := range m.cfg.Techniques {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch tech {
		case port.SYN:
			m.synScan(ctx, p)
		case port.ACK:
			m.ackScan(ctx, p)
		case port.FIN:
			m.finScan(ctx, p)
		case port.XMAS:
			m.xmasScan(ctx, p)
		case port.NULL:
			m.nullScan(ctx, p)
		case port.WINDOW:
			m.windowScan(ctx, p)
		case port.UDP:
			m.udpScan(ctx, p)
		case port.SSL:
			m.sslProbe(ctx, p)
		case port.TLSEcho:
			m.tlsEchoScan(ctx, p)
		case port.Mimic:
			m.mimicScan(ctx, p)
		case port.Frag:
			m.fragScan(ctx, p)
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
	}

	if m.store.Open(p) {
		m.enrich(ctx, p)
	}
}

// enrich runs banner grabbing, service identification and vulnerability
// correlation for a port whose aggregate state is open. Strictly after
// all the port's technique verdicts are recorded.
func (m *Manager) enrich(ctx context.Context, p uint16) {
	m.bannerGrab(ctx, p)
	m.store.Update(p, func(r *port.PortResult) {
		r.Service = detector.Refine(r.Service, r.Banner, p)
		r.Vulns = append(r.Vulns, sigs.Match(r.Version, r.Banner)...)
		if f := sigs.WeakTLSVersion(r.Service, r.Version); f != "" {
			r.Vulns = append(r.Vulns, f)
		}
	})
}
