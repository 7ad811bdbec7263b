package scanner

import (
	"context"
	"crypto/rand"

	"go.uber.org/zap"

	"quantumscan/detector"
	"quantumscan/packet"
	"quantumscan/port"
	"quantumscan/probe"
)

// mimicPayloads are canned protocol banners appended to a mimic SYN.
// They are response-shaped (server greetings) even though they travel
// toward a server; no claim is made that they fool a real stack.
var mimicPayloads = map[string][]byte{
	"HTTP": []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"),
	"SSH":  []byte("SSH-2.0-OpenSSH_8.2\r\n"),
	"FTP":  []byte("220 FTP Server Ready\r\n"),
	"SMTP": []byte("220 mail.example.com ESMTP\r\n"),
	"IMAP": []byte("* OK IMAP4rev1 Service Ready\r\n"),
	"POP3": []byte("+OK POP3 server ready\r\n"),
}

// mimicPayloadCap limits how many banner bytes ride on the SYN.
const mimicPayloadCap = 16

// tlsEchoPayload fabricates a minimal TLS ServerHello-shaped record.
func tlsEchoPayload() []byte {
	b := make([]byte, 0, 44)
	b = append(b,
		0x16,       // Content Type: Handshake
		0x03, 0x03, // TLS 1.2
		0x00, 0x2f, // length
		0x02,             // Handshake Type: Server Hello
		0x00, 0x00, 0x2b, // handshake length
		0x03, 0x03, // version repeated
	)
	random := make([]byte, 32)
	_, _ = rand.Read(random)
	b = append(b, random...)
	return append(b, 0x00)
}

// synScan performs the classic half-open scan.
func (m *Manager) synScan(ctx context.Context, p uint16) {
	m.synFamilyProbe(ctx, p, port.SYN, nil)
}

// tlsEchoScan sends a SYN carrying a fabricated TLS ServerHello.
func (m *Manager) tlsEchoScan(ctx context.Context, p uint16) {
	m.synFamilyProbe(ctx, p, port.TLSEcho, tlsEchoPayload())
}

// mimicScan sends a SYN carrying the leading bytes of a protocol banner.
func (m *Manager) mimicScan(ctx context.Context, p uint16) {
	payload, ok := mimicPayloads[m.cfg.MimicProtocol]
	if !ok {
		m.log.Warn("unknown mimic protocol, sending empty payload",
			zap.String("protocol", m.cfg.MimicProtocol))
	}
	if len(payload) > mimicPayloadCap {
		payload = payload[:mimicPayloadCap]
	}
	m.synFamilyProbe(ctx, p, port.Mimic, payload)
}

// synFamilyProbe sends SYN(+payload) probes and classifies SYN+ACK as
// open (tearing the half-open flow down with an RST), RST as closed,
// and silence as filtered. An open reply feeds the OS fingerprinter.
func (m *Manager) synFamilyProbe(ctx context.Context, p uint16, tech port.Technique, payload []byte) {
	state := port.StateFiltered
	_ = withRetries(ctx, m.cfg.MaxTries, func() error {
		pr, err := m.builder.TCP(p, packet.TCPFlags{SYN: true}, payload)
		if err != nil {
			m.log.Debug("build probe", zap.Stringer("technique", tech), zap.Error(err))
			return nil
		}
		reply, err := m.eng.SendAndWait(ctx, pr, m.cfg.TimeoutScan)
		if err != nil || reply == nil || !reply.IsTCP {
			return errNoVerdict
		}
		switch {
		case reply.SynAck():
			m.teardown(ctx, pr)
			state = port.StateOpen
			m.store.SetOSGuess(p, detector.FingerprintReply(reply))
			return nil
		case reply.RST:
			state = port.StateClosed
			return nil
		}
		return errNoVerdict
	})
	m.store.SetTCPState(p, tech, state)
}

// teardown resets a half-open flow created by a SYN-family probe.
func (m *Manager) teardown(ctx context.Context, pr *packet.Probe) {
	rst, err := m.builder.RST(pr)
	if err == nil {
		err = m.eng.Send(ctx, rst)
	}
	if err != nil {
		m.log.Debug("teardown rst", zap.Uint16("port", pr.DstPort), zap.Error(err))
	}
}

// ackScan probes filtering: an RST back means the path is unfiltered.
// The verdict lands in the result's filtering field, not tcp_states.
func (m *Manager) ackScan(ctx context.Context, p uint16) {
	state := port.StateFiltered
	_ = withRetries(ctx, m.cfg.MaxTries, func() error {
		reply, err := m.sendFlags(ctx, p, packet.TCPFlags{ACK: true})
		if err != nil || reply == nil || !reply.IsTCP {
			return errNoVerdict
		}
		if reply.RST {
			state = port.StateUnfiltered
			return nil
		}
		return errNoVerdict
	})
	m.store.SetFiltering(p, state)
}

// finScan, xmasScan and nullScan share inverse-scan classification:
// an RST proves closed, silence is inherently open|filtered.
func (m *Manager) finScan(ctx context.Context, p uint16) {
	m.inverseProbe(ctx, p, port.FIN, packet.TCPFlags{FIN: true})
}

func (m *Manager) xmasScan(ctx context.Context, p uint16) {
	m.inverseProbe(ctx, p, port.XMAS, packet.TCPFlags{FIN: true, PSH: true, URG: true})
}

func (m *Manager) nullScan(ctx context.Context, p uint16) {
	m.inverseProbe(ctx, p, port.NULL, packet.TCPFlags{})
}

func (m *Manager) inverseProbe(ctx context.Context, p uint16, tech port.Technique, flags packet.TCPFlags) {
	state := port.StateOpenFiltered
	_ = withRetries(ctx, m.cfg.MaxTries, func() error {
		reply, err := m.sendFlags(ctx, p, flags)
		if err != nil || reply == nil || !reply.IsTCP {
			return errNoVerdict
		}
		if reply.RST {
			state = port.StateClosed
			return nil
		}
		return errNoVerdict
	})
	m.store.SetTCPState(p, tech, state)
}

// windowScan reads the TCP window of the RST a probe provokes: a
// nonzero window is the classic open signature.
func (m *Manager) windowScan(ctx context.Context, p uint16) {
	state := port.StateFiltered
	_ = withRetries(ctx, m.cfg.MaxTries, func() error {
		reply, err := m.sendFlags(ctx, p, packet.TCPFlags{ACK: true})
		if err != nil || reply == nil {
			return errNoVerdict
		}
		if !reply.IsTCP {
			return errNoVerdict
		}
		if reply.Window != 0 {
			state = port.StateOpen
		} else {
			state = port.StateClosed
		}
		return nil
	})
	m.store.SetTCPState(p, port.WINDOW, state)
}

// udpScan classifies from the reply protocol: UDP back is open, ICMP
// port-unreachable is closed, other ICMP is filtered, and silence is
// inherently open|filtered.
func (m *Manager) udpScan(ctx context.Context, p uint16) {
	state := port.StateOpenFiltered
	_ = withRetries(ctx, m.cfg.MaxTries, func() error {
		pr, err := m.builder.UDP(p, []byte("probe"))
		if err != nil {
			m.log.Debug("build udp probe", zap.Error(err))
			return nil
		}
		reply, err := m.eng.SendAndWait(ctx, pr, m.cfg.TimeoutScan)
		if err != nil || reply == nil {
			return errNoVerdict
		}
		switch {
		case reply.IsUDP:
			state = port.StateOpen
		case reply.PortUnreachable():
			state = port.StateClosed
		case reply.IsICMP:
			state = port.StateFiltered
		default:
			return errNoVerdict
		}
		return nil
	})
	m.store.SetUDPState(p, state)
}

// sendFlags builds and sends a bare TCP probe with the given flags.
func (m *Manager) sendFlags(ctx context.Context, p uint16, flags packet.TCPFlags) (*probe.Reply, error) {
	pr, err := m.builder.TCP(p, flags, nil)
	if err != nil {
		m.log.Debug("build probe", zap.Error(err))
		return nil, err
	}
	return m.eng.SendAndWait(ctx, pr, m.cfg.TimeoutScan)
}
