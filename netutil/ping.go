package netutil

import (
	"context"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Ping sends one ICMP echo request to the target and waits for any echo
// reply within timeout. Requires raw-socket privileges, like the rest of
// the raw techniques. Best-effort liveness check: every failure path
// simply reports false.
func Ping(ctx context.Context, tgt *Target, timeout time.Duration) bool {
	network, proto, msgType := "ip4:icmp", 1, ipv4.ICMPTypeEcho
	listenAddr := "0.0.0.0"
	var echoType icmp.Type = msgType
	if tgt.IPv6 {
		network, proto = "ip6:ipv6-icmp", 58
		listenAddr = "::"
		echoType = ipv6.ICMPTypeEchoRequest
	}

	conn, err := icmp.ListenPacket(network, listenAddr)
	if err != nil {
		return false
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: echoType,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("quantumscan"),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return false
	}
	if _, err := conn.WriteTo(wire, &net.IPAddr{IP: tgt.IP}); err != nil {
		return false
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return false
		}
		if peer.String() != tgt.IP.String() {
			continue
		}
		reply, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil {
			continue
		}
		switch reply.Type {
		case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
			return true
		}
	}
}
