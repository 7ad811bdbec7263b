package port

import (
	"fmt"
	"time"
)

// Technique identifies one probing technique. The set is closed: the
// orchestrator dispatches with an exhaustive switch, so a value added
// here without a matching case is caught in review, not at runtime.
type Technique int

const (
	SYN Technique = iota
	ACK
	FIN
	XMAS
	NULL
	WINDOW
	UDP
	SSL
	TLSEcho
	Mimic
	Frag
)

var techniqueNames = map[Technique]string{
	SYN:     "syn",
	ACK:     "ack",
	FIN:     "fin",
	XMAS:    "xmas",
	NULL:    "null",
	WINDOW:  "window",
	UDP:     "udp",
	SSL:     "ssl",
	TLSEcho: "tls_echo",
	Mimic:   "mimic",
	Frag:    "frag",
}

func (t Technique) String() string {
	if n, ok := techniqueNames[t]; ok {
		return n
	}
	return fmt.Sprintf("technique(%d)", int(t))
}

// ParseTechnique maps a CLI token ("syn", "tls_echo", ...) to a Technique.
func ParseTechnique(s string) (Technique, error) {
	for t, n := range techniqueNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown scan technique %q", s)
}

// ParseTechniques parses a list of tokens, preserving caller order.
func ParseTechniques(tokens []string) ([]Technique, error) {
	out := make([]Technique, 0, len(tokens))
	for _, tok := range tokens {
		t, err := ParseTechnique(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Raw reports whether the technique needs raw-socket privileges.
// Only the plain TLS connect probe rides on an ordinary socket.
func (t Technique) Raw() bool {
	return t != SSL
}

// Port states as recorded in PortResult. "open|filtered" is inherent to
// the FIN/XMAS/NULL/UDP methods: no reply cannot distinguish the two.
const (
	StateOpen         = "open"
	StateClosed       = "closed"
	StateFiltered     = "filtered"
	StateOpenFiltered = "open|filtered"
	StateUnfiltered   = "unfiltered"
)

// CertInfo is a structured summary of a peer TLS certificate.
type CertInfo struct {
	Subject   string `json:"subject"`
	Issuer    string `json:"issuer"`
	NotBefore string `json:"not_valid_before"`
	NotAfter  string `json:"not_valid_after"`
	Serial    string `json:"serial"`
	SigAlg    string `json:"signature_algorithm"`
	Version   int    `json:"version"`
}

// PortResult aggregates everything learned about one port. It is owned
// by the orchestrator's store and mutated only under the store's lock.
type PortResult struct {
	Port      uint16               `json:"port"`
	TCPStates map[Technique]string `json:"-"`
	UDPState  string               `json:"udp_state,omitempty"`
	Filtering string               `json:"filtering,omitempty"`
	Service   string               `json:"service,omitempty"`
	Version   string               `json:"version,omitempty"`
	Banner    string               `json:"banner,omitempty"`
	OSGuess   string               `json:"os_guess,omitempty"`
	Cert      *CertInfo            `json:"cert_info,omitempty"`
	Vulns     []string             `json:"vulns,omitempty"`
	ScanTime  time.Time            `json:"scan_time"`
}

// NewPortResult returns an empty result record for a port.
func NewPortResult(p uint16) *PortResult {
	return &PortResult{
		Port:      p,
		TCPStates: make(map[Technique]string),
		ScanTime:  time.Now(),
	}
}

// Open reports the aggregate open invariant: at least one TCP technique
// observed "open", or the UDP probe did.
func (r *PortResult) Open() bool {
	for _, st := range r.TCPStates {
		if st == StateOpen {
			return true
		}
	}
	return r.UDPState == StateOpen
}

// TCPStateStrings renders tcp_states keyed by technique name, for the
// console renderer and the JSON export.
func (r *PortResult) TCPStateStrings() map[string]string {
	out := make(map[string]string, len(r.TCPStates))
	for t, st := range r.TCPStates {
		out[t.String()] = st
	}
	return out
}
