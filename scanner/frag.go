package scanner

import (
	"bytes"
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"quantumscan/packet"
	"quantumscan/port"
)

// fragFillerLen pads the SYN so there is enough segment to slice into
// several fragments.
const fragFillerLen = 200

// fragScan sends the SYN as a train of randomly sized IP fragments and
// classifies from a passive capture of the target's response. A capture
// subsystem failure degrades to filtered, never to a scan error.
func (m *Manager) fragScan(ctx context.Context, p uint16) {
	state := port.StateFiltered
	_ = withRetries(ctx, m.cfg.MaxTries, func() error {
		verdict, err := m.fragAttempt(ctx, p)
		if err != nil {
			m.log.Debug("fragment capture failed", zap.Uint16("port", p), zap.Error(err))
			return nil
		}
		if verdict == "" {
			return errNoVerdict
		}
		state = verdict
		return nil
	})
	m.store.SetTCPState(p, port.Frag, state)
}

// fragAttempt runs one send-and-capture round. An empty verdict means
// the capture window elapsed with nothing decisive seen.
func (m *Manager) fragAttempt(ctx context.Context, p uint16) (string, error) {
	filler := bytes.Repeat([]byte{'A'}, fragFillerLen)
	pr, err := m.builder.TCP(p, packet.TCPFlags{SYN: true}, filler)
	if err != nil {
		return "", err
	}

	frags := packet.SplitFragments(pr.TransportBytes(), m.cfg.FragMinSize, m.cfg.FragMaxSize)
	var pkts [][]byte
	if m.tgt.IPv6 {
		pkts, err = m.builder.BuildIPv6Fragments(frags, rand.Uint32(), pr.TTL)
	} else {
		pkts, err = m.builder.BuildIPv4Fragments(frags, packet.FragmentID(), pr.TTL)
	}
	if err != nil {
		return "", err
	}

	// The capture must be live before the first fragment leaves, and
	// torn down before this attempt returns on every path.
	replies, stop, err := m.eng.Capture(ctx, p, m.cfg.FragTimeout)
	if err != nil {
		return "", err
	}
	defer stop()

	for _, raw := range pkts {
		if err := m.eng.SendRaw(ctx, raw); err != nil {
			m.log.Debug("send fragment", zap.Uint16("port", p), zap.Error(err))
		}
		if err := sleepBetween(ctx, m.cfg.FragMinDelay, m.cfg.FragMaxDelay); err != nil {
			return "", err
		}
	}

	for reply := range replies {
		switch {
		case reply.SynAck():
			return port.StateOpen, nil
		case reply.RST:
			return port.StateClosed, nil
		}
	}
	return "", nil
}

// sleepBetween pauses for a random duration in [min, max], breaking
// the fixed inter-fragment timing pattern.
func sleepBetween(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min + 1)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
