// Package trust decides how a relay server's TLS certificate is validated.
//
// Relaynet gateways on a private subnet (a phone hotspot, a LAN courier)
// present self-issued certificates, so for those hosts only the validity
// period of the certificate is checked. Publicly routable hosts always get
// normal chain and hostname validation.
//
// Everything here is pure: the caller resolves the host and passes the
// address in.
package trust

import (
	"crypto/tls"
	"errors"
	"net/netip"
)

var (
	ErrTLSRequired                 = errors.New("trust: tls required")
	ErrClientValidationUnsupported = errors.New("trust: client-side certificate validation is unsupported")
)

// Deprecated IPv6 site-local range; still reported as site-local by most stacks.
var siteLocalV6 = netip.MustParsePrefix("fec0::/10")

// Decision is the outcome of Decide. It is fixed for the lifetime of a channel.
type Decision struct {
	BypassValidation bool
}

// IsPrivate reports whether addr is a private/site-local address:
// 10/8, 172.16/12, 192.168/16, fc00::/7 or fec0::/10.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return false
	}
	return addr.IsPrivate() || siteLocalV6.Contains(addr)
}

// Decide returns the trust decision for a server at addr.
//
// Validation is only bypassed for TLS connections to private addresses.
func Decide(addr netip.Addr, useTLS bool) Decision {
	return Decision{BypassValidation: useTLS && IsPrivate(addr)}
}

// TLSConfig builds the client TLS configuration for d.
//
// compat caps the handshake at TLS 1.2 for peers whose stacks cannot
// negotiate 1.3.
func (d Decision) TLSConfig(serverName string, compat bool) *tls.Config {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if compat {
		cfg.MaxVersion = tls.VersionTLS12
	}
	if d.BypassValidation {
		v := NewPrivateSubnetVerifier()
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = v.VerifyServer
	}
	return cfg
}
