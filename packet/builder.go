// Package packet constructs the raw IPv4/IPv6 probe packets the scan
// techniques send. Layers are built with gopacket and serialized with
// computed checksums; the probe engine only ever sees finished bytes.
package packet

import (
	"fmt"
	"math/rand"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	defaultTTL = 64

	ephemeralLow  = 1024
	ephemeralHigh = 65535

	ipv4HeaderLen = 20 // we always build IHL=5, no options
	ipv6HeaderLen = 40
)

// evasionTTLs is the pool the TTL/hop-limit is drawn from when evasion
// is on; mixed TTLs break the constant-TTL fingerprint of a scanner.
var evasionTTLs = []uint8{64, 128, 255}

// TCPFlags is the flag set for a crafted TCP segment.
type TCPFlags struct {
	SYN, ACK, FIN, RST, PSH, URG bool
}

// Probe is one serialized packet plus the flow identity needed to match
// its reply and to tear the flow down.
type Probe struct {
	Bytes   []byte
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Flags   TCPFlags
	Payload []byte
	UDP     bool
	DstIP   net.IP
	IPv6    bool
	TTL     uint8
}

// TransportBytes returns the TCP/UDP segment plus payload with the IP
// header stripped, which is the byte range the fragmenter slices up.
func (p *Probe) TransportBytes() []byte {
	if p.IPv6 {
		return p.Bytes[ipv6HeaderLen:]
	}
	return p.Bytes[ipv4HeaderLen:]
}

// Builder crafts probes for a single target. Safe for concurrent use:
// it holds no mutable state and all randomness comes from the locked
// package-level source.
type Builder struct {
	DstIP   net.IP
	SrcIP   net.IP // may be nil; kernel route selection fills it in
	IPv6    bool
	Evasion bool
}

// NewBuilder returns a Builder for the target. src may be nil.
func NewBuilder(dst, src net.IP, ipv6, evasion bool) *Builder {
	return &Builder{DstIP: dst, SrcIP: src, IPv6: ipv6, Evasion: evasion}
}

// ttl picks the default hop count, or a random draw when evading.
func (b *Builder) ttl() uint8 {
	if b.Evasion {
		return evasionTTLs[rand.Intn(len(evasionTTLs))]
	}
	return defaultTTL
}

// EphemeralPort returns a random source port in 1024-65535.
func EphemeralPort() uint16 {
	return uint16(ephemeralLow + rand.Intn(ephemeralHigh-ephemeralLow+1))
}

// RandomSeq returns a random initial sequence number.
func RandomSeq() uint32 {
	return rand.Uint32()
}

func (b *Builder) ipv4Layer(ttl uint8) *layers.IPv4 {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    b.SrcIP,
		DstIP:    b.DstIP,
	}
	if b.Evasion {
		ip.Id = uint16(rand.Intn(65535) + 1)
	}
	return ip
}

func (b *Builder) ipv6Layer(ttl uint8) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   ttl,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      b.SrcIP,
		DstIP:      b.DstIP,
	}
}

// TCP builds a TCP probe to dstPort with the given flags and optional
// payload, using a fresh ephemeral source port and random ISN.
func (b *Builder) TCP(dstPort uint16, flags TCPFlags, payload []byte) (*Probe, error) {
	return b.tcpWithFlow(dstPort, EphemeralPort(), RandomSeq(), flags, payload)
}

// RST builds the teardown reset for a half-open flow created by probe p:
// same ports, sequence advanced past the SYN.
func (b *Builder) RST(p *Probe) (*Probe, error) {
	return b.tcpWithFlow(p.DstPort, p.SrcPort, p.Seq+1, TCPFlags{RST: true}, nil)
}

func (b *Builder) tcpWithFlow(dstPort, srcPort uint16, seq uint32, flags TCPFlags, payload []byte) (*Probe, error) {
	ttl := b.ttl()
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq,
		Window:  65535,
		SYN:     flags.SYN,
		ACK:     flags.ACK,
		FIN:     flags.FIN,
		RST:     flags.RST,
		PSH:     flags.PSH,
		URG:     flags.URG,
	}

	data, err := b.serialize(tcp, layers.IPProtocolTCP, ttl, payload)
	if err != nil {
		return nil, err
	}
	return &Probe{
		Bytes:   data,
		SrcPort: srcPort,
		DstPort: dstPort,
		Seq:     seq,
		Flags:   flags,
		Payload: payload,
		DstIP:   b.DstIP,
		IPv6:    b.IPv6,
		TTL:     ttl,
	}, nil
}

// UDP builds a UDP probe carrying payload.
func (b *Builder) UDP(dstPort uint16, payload []byte) (*Probe, error) {
	srcPort := EphemeralPort()
	ttl := b.ttl()
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}

	data, err := b.serialize(udp, layers.IPProtocolUDP, ttl, payload)
	if err != nil {
		return nil, err
	}
	return &Probe{
		Bytes:   data,
		SrcPort: srcPort,
		DstPort: dstPort,
		Payload: payload,
		UDP:     true,
		DstIP:   b.DstIP,
		IPv6:    b.IPv6,
		TTL:     ttl,
	}, nil
}

type transportLayer interface {
	gopacket.SerializableLayer
	SetNetworkLayerForChecksum(l gopacket.NetworkLayer) error
}

func (b *Builder) serialize(transport transportLayer, proto layers.IPProtocol, ttl uint8, payload []byte) ([]byte, error) {
	var network gopacket.NetworkLayer
	var serializableIP gopacket.SerializableLayer
	if b.IPv6 {
		ip := b.ipv6Layer(ttl)
		ip.NextHeader = proto
		network, serializableIP = ip, ip
	} else {
		ip := b.ipv4Layer(ttl)
		ip.Protocol = proto
		network, serializableIP = ip, ip
	}

	if err := transport.SetNetworkLayerForChecksum(network); err != nil {
		return nil, fmt.Errorf("bind checksum: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, serializableIP, transport, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize probe: %w", err)
	}
	return buf.Bytes(), nil
}
