package scanner

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quantumscan/port"
)

const (
	bannerReadLimit = 1024
	bannerKeep      = 256
)

// bannerGrab opens a plain TCP connection to an open port, sends a
// probe chosen by the currently recorded service guess and stores the
// first 256 characters read back. Every failure leaves the banner
// empty; nothing propagates.
func (m *Manager) bannerGrab(ctx context.Context, p uint16) {
	guess := ""
	if r := m.store.Get(p); r != nil {
		guess = strings.ToLower(r.Service)
	}

	addr := net.JoinHostPort(m.tgt.IP.String(), strconv.Itoa(int(p)))
	dialer := &net.Dialer{Timeout: m.cfg.TimeoutConnect}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		m.log.Debug("banner dial", zap.Uint16("port", p), zap.Error(err))
		return
	}
	defer conn.Close()

	var req []byte
	switch {
	case strings.Contains(guess, "http"):
		req = []byte(fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\n\r\n", m.tgt.IP))
	case strings.Contains(guess, "ftp"):
		req = []byte("USER anonymous\r\n")
	case strings.Contains(guess, "ssh"):
		req = []byte("SSH-2.0-QuantumScan\r\n")
	default:
		req = []byte("HEAD / HTTP/1.0\r\n\r\n")
	}

	_ = conn.SetDeadline(time.Now().Add(m.cfg.TimeoutBanner))
	if _, err := conn.Write(req); err != nil {
		m.log.Debug("banner write", zap.Uint16("port", p), zap.Error(err))
		return
	}

	buf := make([]byte, bannerReadLimit)
	n, err := conn.Read(buf)
	if n <= 0 {
		if err != nil {
			m.log.Debug("banner read", zap.Uint16("port", p), zap.Error(err))
		}
		return
	}

	banner := string(buf[:n])
	if len(banner) > bannerKeep {
		banner = banner[:bannerKeep]
	}
	lower := strings.ToLower(banner)

	m.store.Update(p, func(r *port.PortResult) {
		r.Banner = banner
		// An FTP greeting trumps whatever was guessed before.
		if strings.Contains(banner, "220") && strings.Contains(lower, "ftp") {
			r.Service = "FTP"
		}
	})
}
