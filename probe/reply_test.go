package probe

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func tcpReplyBytes(t *testing.T, syn, ack, rst bool, window uint16, opts []layers.TCPOption) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 5).To4(),
		DstIP:    net.IPv4(10, 0, 0, 1).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: 80, DstPort: 40000,
		SYN: syn, ACK: ack, RST: rst,
		Window:  window,
		Options: opts,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum bind: %v", err)
	}
	return serialize(t, ip, tcp)
}

func TestParseReply_SynAck(t *testing.T) {
	r := ParseReply(tcpReplyBytes(t, true, true, false, 65000, nil), false)
	if r == nil || !r.IsTCP {
		t.Fatal("expected TCP reply")
	}
	if !r.SynAck() {
		t.Fatal("SYN+ACK not detected")
	}
	if r.RST {
		t.Fatal("phantom RST")
	}
	if r.TTL != 64 {
		t.Fatalf("TTL %d want 64", r.TTL)
	}
	if r.Window != 65000 {
		t.Fatalf("window %d want 65000", r.Window)
	}
	if r.SrcPort != 80 {
		t.Fatalf("src port %d want 80", r.SrcPort)
	}
}

func TestParseReply_Rst(t *testing.T) {
	r := ParseReply(tcpReplyBytes(t, false, true, true, 0, nil), false)
	if r == nil || !r.RST {
		t.Fatal("RST not detected")
	}
	if r.SynAck() {
		t.Fatal("RST+ACK misread as SYN+ACK")
	}
}

func TestParseReply_TCPOptions(t *testing.T) {
	opts := []layers.TCPOption{
		{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0x05, 0xb4}},
		{OptionType: layers.TCPOptionKindTimestamps, OptionLength: 10, OptionData: make([]byte, 8)},
	}
	r := ParseReply(tcpReplyBytes(t, true, true, false, 1000, opts), false)
	if r == nil || len(r.Options) != 2 {
		t.Fatalf("options not carried through: %+v", r)
	}
}

func TestParseReply_ICMPPortUnreachable(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IPv4(10, 0, 0, 5).To4(),
		DstIP:    net.IPv4(10, 0, 0, 1).To4(),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodePort),
	}
	r := ParseReply(serialize(t, ip, icmp), false)
	if r == nil || !r.IsICMP {
		t.Fatal("ICMP reply not detected")
	}
	if !r.PortUnreachable() {
		t.Fatalf("type %d code %d not classified port-unreachable", r.ICMPType, r.ICMPCode)
	}
}

func TestParseReply_UDP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 5).To4(),
		DstIP:    net.IPv4(10, 0, 0, 1).To4(),
	}
	udp := &layers.UDP{SrcPort: 53, DstPort: 40000}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum bind: %v", err)
	}
	r := ParseReply(serialize(t, ip, udp, gopacket.Payload([]byte("answer"))), false)
	if r == nil || !r.IsUDP {
		t.Fatal("UDP reply not detected")
	}
	if r.PortUnreachable() {
		t.Fatal("UDP reply misread as unreachable")
	}
}

func TestParseReply_IPv6HopLimit(t *testing.T) {
	ip := &layers.IPv6{
		Version: 6, HopLimit: 255,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP("2001:db8::5"),
		DstIP:      net.ParseIP("2001:db8::1"),
	}
	tcp := &layers.TCP{SrcPort: 443, DstPort: 40000, SYN: true, ACK: true, Window: 1}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum bind: %v", err)
	}
	r := ParseReply(serialize(t, ip, tcp), true)
	if r == nil || !r.SynAck() {
		t.Fatal("v6 SYN+ACK not detected")
	}
	if r.TTL != 255 {
		t.Fatalf("hop limit %d want 255", r.TTL)
	}
}
