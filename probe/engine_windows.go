//go:build windows
// +build windows

package probe

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"quantumscan/packet"
)

// Raw-socket probing is not supported on Windows in this build; the
// connect-based SSL technique is the only one available there.
var errNoRawSockets = errors.New("raw-socket probing not supported on Windows")

// Config mirrors the unix engine configuration.
type Config struct {
	TargetIP  net.IP
	LocalIP   net.IP
	IPv6      bool
	Interface string
	MaxRate   int
	Workers   int
	Logger    *zap.Logger
}

// PcapEngine stub: construction always fails on Windows.
type PcapEngine struct{}

func NewEngine(Config) (*PcapEngine, error) { return nil, errNoRawSockets }

func (e *PcapEngine) SendAndWait(context.Context, *packet.Probe, time.Duration) (*Reply, error) {
	return nil, errNoRawSockets
}

func (e *PcapEngine) Send(context.Context, *packet.Probe) error { return errNoRawSockets }

func (e *PcapEngine) SendRaw(context.Context, []byte) error { return errNoRawSockets }

func (e *PcapEngine) Capture(context.Context, uint16, time.Duration) (<-chan *Reply, func(), error) {
	return nil, nil, errNoRawSockets
}

func (e *PcapEngine) Close() error { return nil }
