package broker

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// LoadClientTLS builds a TLS config from files. certFile and keyFile may be
// empty for server-authenticated connections.
func LoadClientTLS(caFile, certFile, keyFile string) (*tls.Config, error) {
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	var certPEM, keyPEM []byte
	if certFile != "" || keyFile != "" {
		if certPEM, err = os.ReadFile(certFile); err != nil {
			return nil, fmt.Errorf("failed to read client certificate: %w", err)
		}
		if keyPEM, err = os.ReadFile(keyFile); err != nil {
			return nil, fmt.Errorf("failed to read client key: %w", err)
		}
	}

	return ClientTLSFromPEM(ca, certPEM, keyPEM)
}

// ClientTLSFromPEM builds an mTLS client config from in-memory PEM blocks.
func ClientTLSFromPEM(caPEM, certPEM, keyPEM []byte) (*tls.Config, error) {
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("failed to append CA certificate")
	}

	config := &tls.Config{
		RootCAs:    caPool,
		MinVersion: tls.VersionTLS12,
	}

	if len(certPEM) > 0 {
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
