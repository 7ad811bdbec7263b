// Package sigs is the static vulnerability-signature table. Substring
// matching against banners and version strings: best-effort pattern
// correlation, not authoritative vulnerability scanning.
package sigs

import (
	"strings"

	"quantumscan/port"
)

// vulnDB maps a lower-cased product signature to its known CVE labels.
var vulnDB = []struct {
	Substr string
	Vulns  []string
}{
	{"apache/2.4.49", []string{"CVE-2021-41773 (Path Traversal)"}},
	{"openssh_8.0", []string{"CVE-2021-41617 (SSH Agent Vulnerability)"}},
	{"iis/10.0", []string{"CVE-2020-0601 (CurveBall)"}},
}

// Match returns the CVE labels whose signature appears in the version
// or banner string. Matching is case-insensitive.
func Match(version, banner string) []string {
	v := strings.ToLower(version)
	b := strings.ToLower(banner)
	var out []string
	for _, sig := range vulnDB {
		if strings.Contains(v, sig.Substr) || strings.Contains(b, sig.Substr) {
			out = append(out, sig.Vulns...)
		}
	}
	return out
}

// WeakTLSVersion flags a TLS service that negotiated TLSv1.0. Returns
// the finding, or "" when the check does not apply.
func WeakTLSVersion(service, version string) string {
	if service != "SSL/TLS" {
		return ""
	}
	if strings.Contains(strings.ToLower(version), "tlsv1.0") {
		return "Weak TLS version (TLSv1.0)"
	}
	return ""
}

// CertFindings inspects a certificate summary for weak cryptography.
func CertFindings(cert *port.CertInfo) []string {
	if cert == nil {
		return nil
	}
	var out []string
	if cert.SigAlg == "sha1WithRSAEncryption" {
		out = append(out, "Weak signature (SHA1)")
	}
	return out
}
