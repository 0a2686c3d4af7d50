package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sync"
	"time"
)

var (
	// ErrCAUnavailable means CA material is missing or unreadable. It is a
	// configuration problem, never a caller mistake.
	ErrCAUnavailable      = errors.New("certificate authority unavailable")
	ErrRenewalNotDue      = errors.New("certificate is not within the renewal window")
	ErrCertificateRevoked = errors.New("certificate has been revoked")
	ErrInvalidCertificate = errors.New("invalid certificate")
	ErrInvalidSerial      = errors.New("invalid certificate serial number")
)

const (
	DefaultValidityDays = 365
	RenewalThreshold    = 30 * 24 * time.Hour
	crlValidity         = 7 * 24 * time.Hour
	organization        = "playerhub"
)

var caKeyBits = 4096

type Config struct {
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	CRLFile      string `mapstructure:"crl_file"`
	Bootstrap    bool   `mapstructure:"bootstrap"`
	ValidityDays int    `mapstructure:"validity_days"`
}

// Authority signs player client certificates with a CA read from disk and
// keeps the revocation list next to it.
type Authority struct {
	caCertPath   string
	caKeyPath    string
	crlPath      string
	validityDays int
	now          func() time.Time

	// crlMu serialises read-modify-write of the CRL file.
	crlMu sync.Mutex
}

func New(cfg Config) (*Authority, error) {
	a := &Authority{
		caCertPath:   cfg.CertFile,
		caKeyPath:    cfg.KeyFile,
		crlPath:      cfg.CRLFile,
		validityDays: cfg.ValidityDays,
		now:          time.Now,
	}
	if a.validityDays <= 0 {
		a.validityDays = DefaultValidityDays
	}

	if cfg.Bootstrap {
		if err := a.ensureCA(); err != nil {
			return nil, fmt.Errorf("failed to bootstrap CA: %w", err)
		}
	} else if !fileExists(a.caCertPath) || !fileExists(a.caKeyPath) {
		// Issuance fails per call until the material appears.
		slog.Error("CA material not found, certificate issuance is disabled",
			"cert_path", a.caCertPath,
			"key_path", a.caKeyPath)
	}

	return a, nil
}

// CACertPEM returns the CA certificate players use to trust the broker.
func (a *Authority) CACertPEM() (string, error) {
	data, err := os.ReadFile(a.caCertPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCAUnavailable, err)
	}
	return string(data), nil
}

func (a *Authority) ensureCA() error {
	if fileExists(a.caCertPath) && fileExists(a.caKeyPath) {
		slog.Debug("Using existing CA certificate", "cert_path", a.caCertPath)
		return nil
	}

	slog.Info("CA certificate not found, generating new CA", "cert_path", a.caCertPath)

	caCert, caKey, err := generateCA(a.now())
	if err != nil {
		return err
	}

	if err := ensureDirectory(a.caCertPath); err != nil {
		return err
	}
	if err := writeCertToFile(caCert, a.caCertPath); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}
	if err := ensureDirectory(a.caKeyPath); err != nil {
		return err
	}
	if err := writeKeyToFile(caKey, a.caKeyPath); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}

	slog.Info("Generated CA certificate", "cert_path", a.caCertPath, "key_path", a.caKeyPath)
	return nil
}

func generateCA(now time.Time) (*x509.Certificate, *rsa.PrivateKey, error) {
	caKey, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   "playerhub device CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return caCert, caKey, nil
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}
