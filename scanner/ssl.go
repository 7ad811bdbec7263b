package scanner

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"

	"go.uber.org/zap"

	"quantumscan/port"
	"quantumscan/sigs"
)

// sslProbe attempts a full TLS handshake on an ordinary socket. Success
// is open; refusal or timeout is closed. On success the negotiated
// version and a certificate summary land on the result, along with any
// weak-crypto findings.
func (m *Manager) sslProbe(ctx context.Context, p uint16) {
	addr := net.JoinHostPort(m.tgt.IP.String(), strconv.Itoa(int(p)))
	dialer := &net.Dialer{Timeout: m.cfg.TimeoutConnect}

	// Certificate inspection, not validation: accept whatever the
	// server presents.
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS10,
	})
	if err != nil {
		m.log.Debug("tls probe", zap.Uint16("port", p), zap.Error(err))
		m.store.SetTCPState(p, port.SSL, port.StateClosed)
		return
	}
	defer conn.Close()

	cs := conn.ConnectionState()
	version := tlsVersionString(cs.Version)
	var cert *port.CertInfo
	if len(cs.PeerCertificates) > 0 {
		cert = summarizeCert(cs.PeerCertificates[0])
	}

	m.store.Update(p, func(r *port.PortResult) {
		r.TCPStates[port.SSL] = port.StateOpen
		r.Service = "SSL/TLS"
		r.Version = version
		r.Cert = cert
		r.Vulns = append(r.Vulns, sigs.CertFindings(cert)...)
	})
}

func tlsVersionString(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1.0"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	}
	return "unknown"
}

// summarizeCert flattens the fields the correlator and the report read.
func summarizeCert(c *x509.Certificate) *port.CertInfo {
	return &port.CertInfo{
		Subject:   c.Subject.String(),
		Issuer:    c.Issuer.String(),
		NotBefore: c.NotBefore.String(),
		NotAfter:  c.NotAfter.String(),
		Serial:    c.SerialNumber.String(),
		SigAlg:    sigAlgName(c.SignatureAlgorithm),
		Version:   c.Version,
	}
}

// sigAlgName uses OpenSSL-style algorithm names so signature checks
// line up with the usual tooling output.
func sigAlgName(a x509.SignatureAlgorithm) string {
	switch a {
	case x509.SHA1WithRSA:
		return "sha1WithRSAEncryption"
	case x509.SHA256WithRSA:
		return "sha256WithRSAEncryption"
	case x509.SHA384WithRSA:
		return "sha384WithRSAEncryption"
	case x509.SHA512WithRSA:
		return "sha512WithRSAEncryption"
	case x509.ECDSAWithSHA1:
		return "ecdsa-with-SHA1"
	case x509.ECDSAWithSHA256:
		return "ecdsa-with-SHA256"
	case x509.ECDSAWithSHA384:
		return "ecdsa-with-SHA384"
	case x509.ECDSAWithSHA512:
		return "ecdsa-with-SHA512"
	}
	return a.String()
}
