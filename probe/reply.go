package probe

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Reply is the decoded view of a captured response packet: just the
// fields the classification tables and the OS fingerprinter read.
type Reply struct {
	IsTCP  bool
	IsUDP  bool
	IsICMP bool

	// TCP fields
	SYN, ACK, RST, FIN bool
	Window             uint16
	Options            []layers.TCPOption
	SrcPort            uint16

	// ICMP fields
	ICMPType uint8
	ICMPCode uint8

	// TTL for IPv4 replies, hop limit for IPv6.
	TTL int
}

// SynAck reports the half-open success signature.
func (r *Reply) SynAck() bool { return r.SYN && r.ACK }

// PortUnreachable reports ICMP type 3 code 3, the UDP "closed" signal.
func (r *Reply) PortUnreachable() bool {
	return r.IsICMP && r.ICMPType == 3 && r.ICMPCode == 3
}

// ParseReply decodes raw IP packet bytes into a Reply, or nil when the
// bytes hold none of the layers the classifiers care about.
func ParseReply(data []byte, ipv6 bool) *Reply {
	first := layers.LayerTypeIPv4
	if ipv6 {
		first = layers.LayerTypeIPv6
	}
	return replyFromPacket(gopacket.NewPacket(data, first, gopacket.Default))
}

// ParseLinkReply decodes a link-layer frame captured off an interface.
func ParseLinkReply(data []byte, linkType layers.LinkType) *Reply {
	return replyFromPacket(gopacket.NewPacket(data, linkType, gopacket.Default))
}

func replyFromPacket(pkt gopacket.Packet) *Reply {
	r := &Reply{}

	if ip4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		r.TTL = int(ip4.TTL)
	} else if ip6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		r.TTL = int(ip6.HopLimit)
	}

	if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		r.IsTCP = true
		r.SYN, r.ACK, r.RST, r.FIN = tcp.SYN, tcp.ACK, tcp.RST, tcp.FIN
		r.Window = tcp.Window
		r.Options = tcp.Options
		r.SrcPort = uint16(tcp.SrcPort)
		return r
	}
	if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		r.IsUDP = true
		r.SrcPort = uint16(udp.SrcPort)
		return r
	}
	if icmp4, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		r.IsICMP = true
		r.ICMPType = icmp4.TypeCode.Type()
		r.ICMPCode = icmp4.TypeCode.Code()
		return r
	}
	if icmp6, ok := pkt.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6); ok {
		r.IsICMP = true
		r.ICMPType = icmp6.TypeCode.Type()
		r.ICMPCode = icmp6.TypeCode.Code()
		return r
	}
	if r.TTL != 0 {
		return r
	}
	return nil
}
