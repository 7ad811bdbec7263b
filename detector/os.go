// Package detector holds the passive fingerprinting heuristics: OS
// guessing from reply packet traits and service identification from
// port numbers and banners.
package detector

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"quantumscan/probe"
)

// linuxMSS is the MSS value a stock Linux stack advertises on ethernet.
const linuxMSS = 1460

// FingerprintReply derives a best-guess OS from an open-classifying
// reply: the TTL/hop-limit bucket first, refined by TCP options. It
// reads one packet, not a probe battery, so treat the answer as a hint.
func FingerprintReply(r *probe.Reply) string {
	if r == nil || !r.IsTCP {
		return ""
	}

	var guess string
	switch {
	case r.TTL <= 64:
		guess = "Linux/Unix"
	case r.TTL <= 128:
		guess = "Windows"
	default:
		guess = "Solaris/Cisco"
	}

	if hasOption(r.Options, layers.TCPOptionKindTimestamps) {
		return "Linux/Unix (Timestamp)"
	}
	if mss, ok := mssOption(r.Options); ok && mss == linuxMSS {
		return "Linux/Unix"
	}
	return guess
}

func hasOption(opts []layers.TCPOption, kind layers.TCPOptionKind) bool {
	for _, o := range opts {
		if o.OptionType == kind {
			return true
		}
	}
	return false
}

func mssOption(opts []layers.TCPOption) (uint16, bool) {
	for _, o := range opts {
		if o.OptionType == layers.TCPOptionKindMSS && len(o.OptionData) == 2 {
			return binary.BigEndian.Uint16(o.OptionData), true
		}
	}
	return 0, false
}
