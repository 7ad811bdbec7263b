package detector

import "strings"

// wellKnown maps common ports to a service guess when no probe gave a
// better answer.
var wellKnown = map[uint16]string{
	22:   "SSH",
	25:   "SMTP",
	53:   "DNS",
	80:   "HTTP",
	443:  "HTTPS",
	3389: "RDP",
}

// GuessByPort returns the well-known-port service name, or "unknown".
func GuessByPort(p uint16) string {
	if s, ok := wellKnown[p]; ok {
		return s
	}
	return "unknown"
}

// Refine settles the final service guess for a port: keep a probe's
// answer if one exists, fall back to the well-known-port map, then let
// the banner override generic guesses.
func Refine(service, banner string, p uint16) string {
	if service == "" {
		service = GuessByPort(p)
	}
	if banner == "" {
		return service
	}
	b := strings.ToLower(banner)
	switch {
	case strings.Contains(b, "ssh"):
		return "SSH"
	case strings.Contains(b, "http"):
		return "HTTP"
	}
	return service
}
