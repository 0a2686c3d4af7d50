package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const leafKeyBits = 2048

// Issued is a freshly signed player identity.
type Issued struct {
	CertPEM   string
	KeyPEM    string
	Serial    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue signs a client certificate whose Common Name is playerKey.
// validityDays <= 0 uses the configured default.
func (a *Authority) Issue(playerKey string, validityDays int) (*Issued, error) {
	if validityDays <= 0 {
		validityDays = a.validityDays
	}

	caCert, caKey, err := loadCA(a.caCertPath, a.caKeyPath)
	if err != nil {
		slog.Error("Failed to load CA for player certificate", "error", err, "player_id", playerKey)
		return nil, fmt.Errorf("%w: %v", ErrCAUnavailable, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate player key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := a.now()
	expires := now.Add(time.Duration(validityDays) * 24 * time.Hour)
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   playerKey,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              expires,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create player certificate: %w", err)
	}

	keyPEM, err := KeyToPEM(key)
	if err != nil {
		return nil, err
	}

	slog.Info("Issued player certificate", "player_id", playerKey, "serial", serial.String(), "expires_at", expires)

	return &Issued{
		CertPEM:   DERToPEM(der),
		KeyPEM:    keyPEM,
		Serial:    serial.String(),
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}

// Renew issues a replacement once currentExpiry is within RenewalThreshold
// or already past.
func (a *Authority) Renew(playerKey string, currentExpiry time.Time, validityDays int) (*Issued, error) {
	if !RenewalDue(currentExpiry, a.now()) {
		return nil, ErrRenewalNotDue
	}
	return a.Issue(playerKey, validityDays)
}

func RenewalDue(expiresAt, now time.Time) bool {
	return !expiresAt.After(now.Add(RenewalThreshold))
}

// EnsureBrokerCertificate writes a server certificate for the broker's TLS
// listener unless one already exists at certPath/keyPath.
func (a *Authority) EnsureBrokerCertificate(certPath, keyPath string, dnsNames []string, ips []net.IP) error {
	if fileExists(certPath) && fileExists(keyPath) {
		slog.Debug("Using existing broker certificate", "cert_path", certPath)
		return nil
	}

	caCert, caKey, err := loadCA(a.caCertPath, a.caKeyPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCAUnavailable, err)
	}

	if len(dnsNames) == 0 {
		dnsNames = []string{"localhost"}
	}
	if len(ips) == 0 {
		ips = []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}
	}

	serverCert, serverKey, err := generateServerCert(caCert, caKey, dnsNames, ips, a.now())
	if err != nil {
		return err
	}

	if err := ensureDirectory(certPath); err != nil {
		return err
	}
	if err := writeCertToFile(serverCert, certPath); err != nil {
		return fmt.Errorf("failed to write broker certificate: %w", err)
	}
	if err := ensureDirectory(keyPath); err != nil {
		return err
	}
	if err := writeKeyToFile(serverKey, keyPath); err != nil {
		return fmt.Errorf("failed to write broker key: %w", err)
	}

	slog.Info("Generated broker certificate", "cert_path", certPath, "domains", dnsNames, "ips", ips)
	return nil
}

func generateServerCert(caCert *x509.Certificate, caKey *rsa.PrivateKey, dnsNames []string, ips []net.IP, now time.Time) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate server key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   dnsNames[0],
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server certificate: %w", err)
	}

	serverCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}

	return serverCert, key, nil
}
