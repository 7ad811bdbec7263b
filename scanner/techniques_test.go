package scanner

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"quantumscan/packet"
	"quantumscan/port"
	"quantumscan/probe"
)

// fakeEngine scripts probe replies so the classification paths can run
// without raw sockets. It records everything sent.
type fakeEngine struct {
	mu    sync.Mutex
	reply func(p *packet.Probe) *probe.Reply

	sent   []*packet.Probe // SendAndWait probes
	resets []*packet.Probe // Send probes (teardown RSTs)
	raw    [][]byte        // SendRaw frames

	captureReplies []*probe.Reply
	captureErr     error
}

func (f *fakeEngine) SendAndWait(_ context.Context, p *packet.Probe, _ time.Duration) (*probe.Reply, error) {
	f.mu.Lock()
	f.sent = append(f.sent, p)
	f.mu.Unlock()
	if f.reply == nil {
		return nil, nil
	}
	return f.reply(p), nil
}

func (f *fakeEngine) Send(_ context.Context, p *packet.Probe) error {
	f.mu.Lock()
	f.resets = append(f.resets, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SendRaw(_ context.Context, data []byte) error {
	f.mu.Lock()
	f.raw = append(f.raw, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Capture(_ context.Context, _ uint16, _ time.Duration) (<-chan *probe.Reply, func(), error) {
	if f.captureErr != nil {
		return nil, nil, f.captureErr
	}
	ch := make(chan *probe.Reply, len(f.captureReplies))
	for _, r := range f.captureReplies {
		ch <- r
	}
	close(ch)
	return ch, func() {}, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) sentProbes() []*packet.Probe {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*packet.Probe, len(f.sent))
	copy(out, f.sent)
	return out
}

// runScan drives a full Run against the fake engine on loopback.
func runScan(t *testing.T, eng probe.Engine, ports []uint16, techs []port.Technique, tweak func(*Config)) map[uint16]*port.PortResult {
	t.Helper()
	cfg := Config{
		Target:         "127.0.0.1",
		Ports:          ports,
		Techniques:     techs,
		MaxRate:        100000,
		MaxTries:       2,
		TimeoutScan:    50 * time.Millisecond,
		TimeoutConnect: 100 * time.Millisecond,
		TimeoutBanner:  100 * time.Millisecond,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	m := NewManager(cfg)
	m.Engine = eng
	results, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return results
}

func synAckReply(ttl int) *probe.Reply {
	return &probe.Reply{IsTCP: true, SYN: true, ACK: true, Window: 65535, TTL: ttl}
}

func rstReply() *probe.Reply {
	return &probe.Reply{IsTCP: true, RST: true, TTL: 64}
}

func TestSynScan_Open(t *testing.T) {
	eng := &fakeEngine{reply: func(*packet.Probe) *probe.Reply { return synAckReply(64) }}
	results := runScan(t, eng, []uint16{47123}, []port.Technique{port.SYN}, nil)

	r := results[47123]
	if got := r.TCPStates[port.SYN]; got != port.StateOpen {
		t.Fatalf("syn state = %q, want open", got)
	}
	if r.OSGuess != "Linux/Unix" {
		t.Fatalf("os guess = %q, want Linux/Unix", r.OSGuess)
	}

	// A SYN+ACK must be answered with a teardown RST on the same flow.
	probes := eng.sentProbes()
	if len(probes) != 1 {
		t.Fatalf("sent %d probes, want 1", len(probes))
	}
	if len(eng.resets) != 1 {
		t.Fatalf("sent %d resets, want 1", len(eng.resets))
	}
	rst := eng.resets[0]
	if !rst.Flags.RST {
		t.Fatalf("teardown probe missing RST flag")
	}
	if rst.SrcPort != probes[0].SrcPort || rst.DstPort != probes[0].DstPort {
		t.Fatalf("teardown flow %d->%d does not match probe flow %d->%d",
			rst.SrcPort, rst.DstPort, probes[0].SrcPort, probes[0].DstPort)
	}
	if rst.Seq != probes[0].Seq+1 {
		t.Fatalf("teardown seq = %d, want %d", rst.Seq, probes[0].Seq+1)
	}
}

func TestSynScan_Closed(t *testing.T) {
	eng := &fakeEngine{reply: func(*packet.Probe) *probe.Reply { return rstReply() }}
	results := runScan(t, eng, []uint16{47123}, []port.Technique{port.SYN}, nil)

	if got := results[47123].TCPStates[port.SYN]; got != port.StateClosed {
		t.Fatalf("syn state = %q, want closed", got)
	}
	if len(eng.resets) != 0 {
		t.Fatalf("closed port must not trigger a teardown RST")
	}
}

func TestSynScan_TimeoutIsFilteredAfterRetries(t *testing.T) {
	eng := &fakeEngine{} // nil reply = silence
	results := runScan(t, eng, []uint16{47123}, []port.Technique{port.SYN}, nil)

	if got := results[47123].TCPStates[port.SYN]; got != port.StateFiltered {
		t.Fatalf("syn state = %q, want filtered", got)
	}
	if got := len(eng.sentProbes()); got != 2 {
		t.Fatalf("sent %d probes, want 2 (MaxTries)", got)
	}
}

func TestAckScan(t *testing.T) {
	cases := []struct {
		name  string
		reply func(*packet.Probe) *probe.Reply
		want  string
	}{
		{"rst means unfiltered", func(*packet.Probe) *probe.Reply { return rstReply() }, port.StateUnfiltered},
		{"silence means filtered", nil, port.StateFiltered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{reply: tc.reply}
			results := runScan(t, eng, []uint16{47123}, []port.Technique{port.ACK}, nil)

			if got := results[47123].Filtering; got != tc.want {
				t.Fatalf("filtering = %q, want %q", got, tc.want)
			}
			if probes := eng.sentProbes(); len(probes) == 0 || !probes[0].Flags.ACK {
				t.Fatalf("ack scan did not send an ACK probe")
			}
		})
	}
}

func TestInverseScans(t *testing.T) {
	techs := []struct {
		tech      port.Technique
		wantFlags packet.TCPFlags
	}{
		{port.FIN, packet.TCPFlags{FIN: true}},
		{port.XMAS, packet.TCPFlags{FIN: true, PSH: true, URG: true}},
		{port.NULL, packet.TCPFlags{}},
	}
	for _, tt := range techs {
		t.Run(tt.tech.String()+" closed", func(t *testing.T) {
			eng := &fakeEngine{reply: func(*packet.Probe) *probe.Reply { return rstReply() }}
			results := runScan(t, eng, []uint16{47123}, []port.Technique{tt.tech}, nil)

			if got := results[47123].TCPStates[tt.tech]; got != port.StateClosed {
				t.Fatalf("%v state = %q, want closed", tt.tech, got)
			}
			if probes := eng.sentProbes(); probes[0].Flags != tt.wantFlags {
				t.Fatalf("%v probe flags = %+v, want %+v", tt.tech, probes[0].Flags, tt.wantFlags)
			}
		})
		t.Run(tt.tech.String()+" silence", func(t *testing.T) {
			eng := &fakeEngine{}
			results := runScan(t, eng, []uint16{47123}, []port.Technique{tt.tech}, nil)

			if got := results[47123].TCPStates[tt.tech]; got != port.StateOpenFiltered {
				t.Fatalf("%v state = %q, want open|filtered", tt.tech, got)
			}
		})
	}
}

func TestWindowScan(t *testing.T) {
	cases := []struct {
		name   string
		window uint16
		want   string
	}{
		{"nonzero window is open", 1024, port.StateOpen},
		{"zero window is closed", 0, port.StateClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{reply: func(*packet.Probe) *probe.Reply {
				return &probe.Reply{IsTCP: true, RST: true, Window: tc.window, TTL: 64}
			}}
			results := runScan(t, eng, []uint16{47123}, []port.Technique{port.WINDOW}, nil)

			if got := results[47123].TCPStates[port.WINDOW]; got != tc.want {
				t.Fatalf("window state = %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("silence is filtered", func(t *testing.T) {
		eng := &fakeEngine{}
		results := runScan(t, eng, []uint16{47123}, []port.Technique{port.WINDOW}, nil)
		if got := results[47123].TCPStates[port.WINDOW]; got != port.StateFiltered {
			t.Fatalf("window state = %q, want filtered", got)
		}
	})
}

func TestUDPScan(t *testing.T) {
	cases := []struct {
		name  string
		reply func(*packet.Probe) *probe.Reply
		want  string
	}{
		{"udp reply is open", func(*packet.Probe) *probe.Reply {
			return &probe.Reply{IsUDP: true, TTL: 64}
		}, port.StateOpen},
		{"port unreachable is closed", func(*packet.Probe) *probe.Reply {
			return &probe.Reply{IsICMP: true, ICMPType: 3, ICMPCode: 3, TTL: 64}
		}, port.StateClosed},
		{"other icmp is filtered", func(*packet.Probe) *probe.Reply {
			return &probe.Reply{IsICMP: true, ICMPType: 3, ICMPCode: 13, TTL: 64}
		}, port.StateFiltered},
		{"silence is open|filtered", nil, port.StateOpenFiltered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{reply: tc.reply}
			results := runScan(t, eng, []uint16{47123}, []port.Technique{port.UDP}, nil)

			if got := results[47123].UDPState; got != tc.want {
				t.Fatalf("udp state = %q, want %q", got, tc.want)
			}
			if probes := eng.sentProbes(); !probes[0].UDP {
				t.Fatalf("udp scan did not send a UDP probe")
			}
		})
	}
}

func TestMimicScan_PayloadCapped(t *testing.T) {
	eng := &fakeEngine{reply: func(*packet.Probe) *probe.Reply { return rstReply() }}
	runScan(t, eng, []uint16{47123}, []port.Technique{port.Mimic}, nil)

	probes := eng.sentProbes()
	if len(probes) == 0 {
		t.Fatal("no probe sent")
	}
	payload := probes[0].Payload
	if len(payload) > mimicPayloadCap {
		t.Fatalf("mimic payload %d bytes, cap is %d", len(payload), mimicPayloadCap)
	}
	want := mimicPayloads["HTTP"][:mimicPayloadCap]
	if !bytes.Equal(payload, want) {
		t.Fatalf("mimic payload %q, want %q", payload, want)
	}
	if !probes[0].Flags.SYN {
		t.Fatalf("mimic probe must carry SYN")
	}
}

func TestTLSEchoScan_PayloadShape(t *testing.T) {
	eng := &fakeEngine{reply: func(*packet.Probe) *probe.Reply { return rstReply() }}
	runScan(t, eng, []uint16{47123}, []port.Technique{port.TLSEcho}, nil)

	probes := eng.sentProbes()
	payload := probes[0].Payload
	if len(payload) != 44 {
		t.Fatalf("tls echo payload %d bytes, want 44", len(payload))
	}
	if payload[0] != 0x16 {
		t.Fatalf("content type 0x%02x, want 0x16 (handshake)", payload[0])
	}
	if payload[1] != 0x03 || payload[2] != 0x03 {
		t.Fatalf("record version %02x %02x, want 03 03", payload[1], payload[2])
	}
	if payload[5] != 0x02 {
		t.Fatalf("handshake type 0x%02x, want 0x02 (server hello)", payload[5])
	}
}

func TestFragScan_OpenFromCapture(t *testing.T) {
	eng := &fakeEngine{captureReplies: []*probe.Reply{synAckReply(64)}}
	results := runScan(t, eng, []uint16{47123}, []port.Technique{port.Frag}, func(c *Config) {
		c.FragMinDelay = time.Millisecond
		c.FragMaxDelay = 2 * time.Millisecond
	})

	if got := results[47123].TCPStates[port.Frag]; got != port.StateOpen {
		t.Fatalf("frag state = %q, want open", got)
	}
	eng.mu.Lock()
	raws := len(eng.raw)
	eng.mu.Unlock()
	if raws < 2 {
		t.Fatalf("sent %d raw fragments, want at least 2", raws)
	}
}

func TestFragScan_RSTIsClosed(t *testing.T) {
	eng := &fakeEngine{captureReplies: []*probe.Reply{rstReply()}}
	results := runScan(t, eng, []uint16{47123}, []port.Technique{port.Frag}, func(c *Config) {
		c.FragMinDelay = time.Millisecond
		c.FragMaxDelay = 2 * time.Millisecond
	})

	if got := results[47123].TCPStates[port.Frag]; got != port.StateClosed {
		t.Fatalf("frag state = %q, want closed", got)
	}
}

func TestFragScan_CaptureFailureDegradesToFiltered(t *testing.T) {
	eng := &fakeEngine{captureErr: context.DeadlineExceeded}
	results := runScan(t, eng, []uint16{47123}, []port.Technique{port.Frag}, nil)

	if got := results[47123].TCPStates[port.Frag]; got != port.StateFiltered {
		t.Fatalf("frag state = %q, want filtered", got)
	}
}

func TestSynScan_IdempotentAgainstRST(t *testing.T) {
	eng := &fakeEngine{reply: func(*packet.Probe) *probe.Reply { return rstReply() }}
	results := runScan(t, eng, []uint16{47123}, []port.Technique{port.SYN, port.SYN}, nil)

	r := results[47123]
	if got := r.TCPStates[port.SYN]; got != port.StateClosed {
		t.Fatalf("syn state = %q, want closed", got)
	}
	if len(r.TCPStates) != 1 {
		t.Fatalf("tcp_states has %d keys, want only the syn key", len(r.TCPStates))
	}
	if r.UDPState != "" || r.Filtering != "" || r.Banner != "" || r.OSGuess != "" {
		t.Fatalf("repeated syn scan left side effects: %+v", r)
	}
}
