package netutil

import (
	"errors"
	"fmt"
	"net"
)

// Target describes the resolved scan target. Immutable once a scan starts.
type Target struct {
	Host    string // original hostname or literal
	IP      net.IP // resolved address, 4-byte form for IPv4
	IPv6    bool
	LocalIP net.IP // best-effort locally bound source address, may be nil
}

// Resolve resolves target (hostname or IP literal) to a Target in the
// requested address family. Resolution failure is fatal to the scan.
func Resolve(target string, ipv6 bool) (*Target, error) {
	ip, err := lookup(target, ipv6)
	if err != nil {
		return nil, err
	}
	t := &Target{Host: target, IP: ip, IPv6: ipv6}
	t.LocalIP = localAddrFor(ip)
	return t, nil
}

func lookup(target string, ipv6 bool) (net.IP, error) {
	if ip := net.ParseIP(target); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			if ipv6 {
				return nil, errors.New("IPv4 literal given but IPv6 scanning requested")
			}
			return v4, nil
		}
		if !ipv6 {
			return nil, errors.New("IPv6 literal given without IPv6 scanning enabled")
		}
		return ip, nil
	}

	ips, err := net.LookupIP(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	for _, ip := range ips {
		v4 := ip.To4()
		if ipv6 && v4 == nil {
			return ip, nil
		}
		if !ipv6 && v4 != nil {
			return v4, nil
		}
	}
	if ipv6 {
		return nil, fmt.Errorf("no AAAA records found for %s", target)
	}
	return nil, fmt.Errorf("no A records found for %s", target)
}

// localAddrFor discovers the source address the kernel would pick for
// the given destination. A connected UDP socket never sends a packet,
// it only runs route selection. Best-effort: nil on failure.
func localAddrFor(dst net.IP) net.IP {
	conn, err := net.Dial("udp", net.JoinHostPort(dst.String(), "53"))
	if err != nil {
		return nil
	}
	defer conn.Close()
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return ua.IP
	}
	return nil
}
