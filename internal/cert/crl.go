package cert

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
)

const crlPEMType = "X509 CRL"

// Revoke adds serial to the CRL and re-signs it. Revoking a serial that is
// already listed succeeds without rewriting the file.
func (a *Authority) Revoke(serial string) error {
	sn, ok := new(big.Int).SetString(serial, 10)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}

	a.crlMu.Lock()
	defer a.crlMu.Unlock()

	current, err := a.readCRL()
	if err != nil {
		return err
	}

	number := big.NewInt(1)
	var entries []x509.RevocationListEntry
	if current != nil {
		for _, e := range current.RevokedCertificateEntries {
			if e.SerialNumber.Cmp(sn) == 0 {
				slog.Debug("Serial already revoked", "serial", serial)
				return nil
			}
		}
		entries = current.RevokedCertificateEntries
		if current.Number != nil {
			number = new(big.Int).Add(current.Number, big.NewInt(1))
		}
	}

	caCert, caKey, err := loadCA(a.caCertPath, a.caKeyPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCAUnavailable, err)
	}

	now := a.now()
	entries = append(entries, x509.RevocationListEntry{
		SerialNumber:   sn,
		RevocationTime: now,
	})

	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		RevokedCertificateEntries: entries,
		Number:                    number,
		ThisUpdate:                now,
		NextUpdate:                now.Add(crlValidity),
	}, caCert, caKey)
	if err != nil {
		return fmt.Errorf("failed to sign CRL: %w", err)
	}

	if err := ensureDirectory(a.crlPath); err != nil {
		return err
	}
	data := pem.EncodeToMemory(&pem.Block{Type: crlPEMType, Bytes: der})
	tmp := a.crlPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write CRL: %w", err)
	}
	if err := os.Rename(tmp, a.crlPath); err != nil {
		return fmt.Errorf("failed to replace CRL: %w", err)
	}

	slog.Info("Revoked certificate", "serial", serial, "crl_number", number.String(), "revoked_total", len(entries))
	return nil
}

// IsRevoked reports whether serial is listed in the CRL.
func (a *Authority) IsRevoked(serial string) (bool, error) {
	sn, ok := new(big.Int).SetString(serial, 10)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}

	a.crlMu.Lock()
	crl, err := a.readCRL()
	a.crlMu.Unlock()
	if err != nil {
		return false, err
	}
	if crl == nil {
		return false, nil
	}

	for _, e := range crl.RevokedCertificateEntries {
		if e.SerialNumber.Cmp(sn) == 0 {
			return true, nil
		}
	}
	return false, nil
}

// CRLPEM returns the current CRL, or an empty string if nothing was revoked yet.
func (a *Authority) CRLPEM() (string, error) {
	a.crlMu.Lock()
	defer a.crlMu.Unlock()

	data, err := os.ReadFile(a.crlPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read CRL: %w", err)
	}
	return string(data), nil
}

func (a *Authority) readCRL() (*x509.RevocationList, error) {
	data, err := os.ReadFile(a.crlPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CRL: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != crlPEMType {
		return nil, fmt.Errorf("failed to decode CRL PEM at %s", a.crlPath)
	}

	crl, err := x509.ParseRevocationList(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CRL: %w", err)
	}
	return crl, nil
}
