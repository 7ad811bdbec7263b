//go:build !windows
// +build !windows

package probe

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"quantumscan/packet"
)

// Config holds what the engine needs to reach one target.
type Config struct {
	TargetIP net.IP
	LocalIP  net.IP // used only to pick the capture interface
	IPv6     bool
	// Interface overrides capture-interface autodetection.
	Interface string
	// MaxRate caps raw packet emission in packets/second. <=0 disables
	// the cap. The adaptive limiter paces between techniques; this is
	// the hard budget on the wire.
	MaxRate int
	// Workers bounds the pool the blocking waits run on.
	Workers int
	Logger  *zap.Logger
}

// PcapEngine sends probes on raw sockets and captures replies through
// BPF-filtered pcap handles. Every blocking wait is offloaded to a
// bounded ants pool so callers only ever block on a channel receive.
type PcapEngine struct {
	cfg     Config
	log     *zap.Logger
	pool    *ants.Pool
	limiter *rate.Limiter

	fd4    int // AF_INET raw socket, header included
	fd6    int // AF_INET6 raw socket, header included
	sendMu sync.Mutex

	iface string
}

// NewEngine opens the raw sockets and the worker pool. Raw socket
// creation is the privilege gate: it fails without CAP_NET_RAW/root.
func NewEngine(cfg Config) (*PcapEngine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 100
	}

	e := &PcapEngine{cfg: cfg, log: cfg.Logger, fd4: -1, fd6: -1}

	if cfg.MaxRate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRate), 1)
	}

	var err error
	if cfg.IPv6 {
		e.fd6, err = unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_RAW)
		if err == nil {
			err = unix.SetsockoptInt(e.fd6, unix.IPPROTO_IPV6, unix.IPV6_HDRINCL, 1)
		}
	} else {
		e.fd4, err = unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
		if err == nil {
			err = unix.SetsockoptInt(e.fd4, unix.IPPROTO_IP, unix.IP_HDRINCL, 1)
		}
	}
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open raw socket: %w", err)
	}

	e.pool, err = ants.NewPool(cfg.Workers)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("probe worker pool: %w", err)
	}

	e.iface = cfg.Interface
	if e.iface == "" {
		e.iface = captureInterface(cfg.LocalIP)
	}
	e.log.Debug("probe engine ready",
		zap.String("iface", e.iface),
		zap.Int("workers", cfg.Workers),
		zap.Int("max_rate", cfg.MaxRate))
	return e, nil
}

// captureInterface picks the interface owning localIP, falling back to
// the Linux "any" pseudo-device.
func captureInterface(localIP net.IP) string {
	if localIP == nil {
		return "any"
	}
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return "any"
	}
	for _, d := range devs {
		for _, a := range d.Addresses {
			if a.IP.Equal(localIP) {
				return d.Name
			}
		}
	}
	return "any"
}

func (e *PcapEngine) sendBytes(ctx context.Context, data []byte, dst net.IP) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	if e.cfg.IPv6 {
		var sa unix.SockaddrInet6
		copy(sa.Addr[:], dst.To16())
		return unix.Sendto(e.fd6, data, 0, &sa)
	}
	var sa unix.SockaddrInet4
	copy(sa.Addr[:], dst.To4())
	return unix.Sendto(e.fd4, data, 0, &sa)
}

// Send emits one probe without waiting.
func (e *PcapEngine) Send(ctx context.Context, p *packet.Probe) error {
	return e.sendBytes(ctx, p.Bytes, p.DstIP)
}

// SendRaw emits pre-framed IP bytes (fragments) toward the target.
func (e *PcapEngine) SendRaw(ctx context.Context, data []byte) error {
	return e.sendBytes(ctx, data, e.cfg.TargetIP)
}

// openHandle opens a pcap capture bound to this engine's interface with
// the given BPF filter.
func (e *PcapEngine) openHandle(filter string) (*pcap.Handle, error) {
	h, err := pcap.OpenLive(e.iface, 65536, false, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("pcap open %s: %w", e.iface, err)
	}
	if err := h.SetBPFFilter(filter); err != nil {
		h.Close()
		return nil, fmt.Errorf("bpf filter %q: %w", filter, err)
	}
	return h, nil
}

// flowFilter matches replies to one probe's 4-tuple; UDP probes also
// admit ICMP from the target so unreachables classify the port.
func (e *PcapEngine) flowFilter(p *packet.Probe) string {
	host := e.cfg.TargetIP.String()
	if p.UDP {
		return fmt.Sprintf("src host %s and ((udp and src port %d and dst port %d) or icmp or icmp6)",
			host, p.DstPort, p.SrcPort)
	}
	return fmt.Sprintf("tcp and src host %s and src port %d and dst port %d",
		host, p.DstPort, p.SrcPort)
}

// SendAndWait emits the probe and blocks on a pool worker until the
// first flow-matched reply or the timeout. A (nil, nil) return is the
// "no reply" outcome.
func (e *PcapEngine) SendAndWait(ctx context.Context, p *packet.Probe, timeout time.Duration) (*Reply, error) {
	h, err := e.openHandle(e.flowFilter(p))
	if err != nil {
		return nil, err
	}

	type outcome struct {
		reply *Reply
		err   error
	}
	ch := make(chan outcome, 1)
	linkType := h.LinkType()
	deadline := time.Now().Add(timeout)

	err = e.pool.Submit(func() {
		defer h.Close()
		ch <- outcome{reply: readUntil(h, linkType, deadline)}
	})
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("offload probe wait: %w", err)
	}

	// The capture is live before the probe leaves, so a fast reply
	// cannot race past the filter.
	if err := e.Send(ctx, p); err != nil {
		e.log.Debug("probe send failed", zap.Uint16("port", p.DstPort), zap.Error(err))
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		return out.reply, out.err
	}
}

// readUntil drains the handle until a decodable reply shows up or the
// deadline passes.
func readUntil(h *pcap.Handle, linkType layers.LinkType, deadline time.Time) *Reply {
	for time.Now().Before(deadline) {
		data, _, err := h.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			return nil
		}
		if r := ParseLinkReply(data, linkType); r != nil {
			return r
		}
	}
	return nil
}

// Capture starts a background capture of TCP traffic from the target's
// fromPort. It feeds every decoded TCP reply into the returned channel
// until the timeout or the stop function fires; stop also joins the
// capture worker, so callers must always invoke it.
func (e *PcapEngine) Capture(ctx context.Context, fromPort uint16, timeout time.Duration) (<-chan *Reply, func(), error) {
	filter := fmt.Sprintf("tcp and src host %s and src port %d", e.cfg.TargetIP.String(), fromPort)
	h, err := e.openHandle(filter)
	if err != nil {
		return nil, nil, err
	}

	replies := make(chan *Reply, 8)
	done := make(chan struct{})
	finished := make(chan struct{})
	linkType := h.LinkType()
	deadline := time.Now().Add(timeout)

	err = e.pool.Submit(func() {
		defer close(finished)
		defer close(replies)
		defer h.Close()
		for time.Now().Before(deadline) {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			default:
			}
			data, _, err := h.ReadPacketData()
			if err != nil {
				if err == pcap.NextErrorTimeoutExpired {
					continue
				}
				return
			}
			r := ParseLinkReply(data, linkType)
			if r == nil || !r.IsTCP {
				continue
			}
			select {
			case replies <- r:
			default:
			}
		}
	})
	if err != nil {
		h.Close()
		return nil, nil, fmt.Errorf("offload capture: %w", err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() { close(done) })
		<-finished
	}
	return replies, stop, nil
}

// Close releases the sockets and the worker pool.
func (e *PcapEngine) Close() error {
	if e.fd4 >= 0 {
		_ = unix.Close(e.fd4)
		e.fd4 = -1
	}
	if e.fd6 >= 0 {
		_ = unix.Close(e.fd6)
		e.fd6 = -1
	}
	if e.pool != nil {
		e.pool.Release()
	}
	return nil
}
