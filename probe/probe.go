// Package probe sends crafted packets and captures the first matching
// reply. All blocking raw-socket and pcap work happens on a dedicated
// worker pool so the goroutines driving the scan never stall on it.
package probe

import (
	"context"
	"time"

	"quantumscan/packet"
)

// Engine is the send-and-wait contract the scan techniques build on.
// A nil Reply with a nil error means the probe timed out unanswered;
// techniques map that to their "no reply" classification.
type Engine interface {
	// SendAndWait emits one probe and blocks until a reply matching
	// the probe's flow 4-tuple arrives or timeout elapses.
	SendAndWait(ctx context.Context, p *packet.Probe, timeout time.Duration) (*Reply, error)

	// Send emits one probe without waiting for a reply (RST teardown).
	Send(ctx context.Context, p *packet.Probe) error

	// SendRaw emits pre-framed IP packet bytes (fragment trains).
	SendRaw(ctx context.Context, data []byte) error

	// Capture starts a background passive capture for traffic from the
	// target's port, returning a reply stream and a stop function. The
	// stop function must be called on every path; it tears the capture
	// down and releases its worker.
	Capture(ctx context.Context, fromPort uint16, timeout time.Duration) (<-chan *Reply, func(), error)

	Close() error
}
