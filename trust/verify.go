package trust

import (
	"crypto/x509"
	"fmt"
	"time"
)

// PrivateSubnetVerifier accepts self-issued server certificates as long as
// they are within their validity period.
type PrivateSubnetVerifier struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewPrivateSubnetVerifier() *PrivateSubnetVerifier {
	return &PrivateSubnetVerifier{Now: time.Now}
}

// VerifyServer has the tls.Config.VerifyPeerCertificate signature.
// An empty chain is accepted.
func (v *PrivateSubnetVerifier) VerifyServer(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for i, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("trust: parse certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return v.CheckServerChain(certs)
}

// CheckServerChain checks the validity period of every certificate in chain.
// Issuer and hostname are not checked.
func (v *PrivateSubnetVerifier) CheckServerChain(chain []*x509.Certificate) error {
	now := v.now()
	for _, cert := range chain {
		if cert == nil {
			continue
		}
		if now.Before(cert.NotBefore) {
			return x509.CertificateInvalidError{
				Cert:   cert,
				Reason: x509.Expired,
				Detail: fmt.Sprintf("current time %s is before %s", now.Format(time.RFC3339), cert.NotBefore.Format(time.RFC3339)),
			}
		}
		if now.After(cert.NotAfter) {
			return x509.CertificateInvalidError{
				Cert:   cert,
				Reason: x509.Expired,
				Detail: fmt.Sprintf("current time %s is after %s", now.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339)),
			}
		}
	}
	return nil
}

// VerifyClient always panics: this client never validates peer client
// certificates, so reaching it means the verifier was wired into a server.
func (v *PrivateSubnetVerifier) VerifyClient([][]byte, [][]*x509.Certificate) error {
	panic(ErrClientValidationUnsupported)
}

// AcceptedIssuers is always empty.
func (v *PrivateSubnetVerifier) AcceptedIssuers() []*x509.Certificate {
	return []*x509.Certificate{}
}

func (v *PrivateSubnetVerifier) now() time.Time {
	if v == nil || v.Now == nil {
		return time.Now()
	}
	return v.Now()
}
