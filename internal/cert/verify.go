package cert

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// VerifyClientCertificate checks a presented player certificate against the
// CA and the CRL and returns its Common Name.
func (a *Authority) VerifyClientCertificate(certPEM string) (string, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return "", fmt.Errorf("%w: no PEM certificate", ErrInvalidCertificate)
	}

	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	caCert, _, err := loadCA(a.caCertPath, a.caKeyPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCAUnavailable, err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(caCert)
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: a.now(),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	revoked, err := a.IsRevoked(leaf.SerialNumber.String())
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrCertificateRevoked
	}

	return leaf.Subject.CommonName, nil
}
