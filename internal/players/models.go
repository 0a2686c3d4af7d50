package players

import (
	"time"
)

type RegistrationStatus string

const (
	StatusPending    RegistrationStatus = "pending"
	StatusRegistered RegistrationStatus = "registered"
)

type ConnectionStatus string

const (
	ConnectionOnline  ConnectionStatus = "online"
	ConnectionOffline ConnectionStatus = "offline"
)

func (s ConnectionStatus) Valid() bool {
	return s == ConnectionOnline || s == ConnectionOffline
}

type Player struct {
	ID                        string
	OwnerID                   string
	Name                      string
	DeviceModel               string
	FirmwareVersion           string
	RegistrationStatus        RegistrationStatus
	RegistrationCode          string
	RegistrationCodeExpiresAt *time.Time
	RegisteredAt              *time.Time
	ConnectionStatus          ConnectionStatus
	LastSeenAt                *time.Time
	CurrentPostID             *int64
	CertPEM                   string
	KeyPEM                    string
	CertSerialNumber          string
	CertIssuedAt              *time.Time
	CertExpiresAt             *time.Time
	CreatedAt                 time.Time
}

func (p *Player) Registered() bool {
	return p.RegistrationStatus == StatusRegistered
}

func (p *Player) HasCredentials() bool {
	return p.CertPEM != "" && p.KeyPEM != ""
}

type Provisioned struct {
	PlayerID         string
	RegistrationCode string
	ExpiresAt        time.Time
}

// CredentialBundle is everything a player needs to open its mTLS session.
type CredentialBundle struct {
	PlayerID   string
	CACertPEM  string
	CertPEM    string
	KeyPEM     string
	ExpiresAt  time.Time
	BrokerHost string
	BrokerPort int
}

// Presence is one heartbeat. Nil optional fields leave stored values alone.
type Presence struct {
	Status          ConnectionStatus
	SeenAt          time.Time
	CurrentPostID   *int64
	FirmwareVersion *string
}

// Claim binds a pending player to an owner.
type Claim struct {
	Code        string
	CodeHash    string
	OwnerID     string
	Name        string
	MaxPerOwner int
}
