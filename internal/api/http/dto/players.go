package dto

import "time"

type ProvisionRequest struct {
	DeviceModel     string `json:"device_model" binding:"required,max=64"`
	FirmwareVersion string `json:"firmware_version" binding:"required,max=64"`
}

type BrokerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ProvisionResponse struct {
	PlayerKey                 string     `json:"player_key"`
	RegistrationCode          string     `json:"registration_code"`
	RegistrationCodeExpiresAt time.Time  `json:"registration_code_expires_at"`
	Broker                    BrokerInfo `json:"broker"`
}

type CredentialsResponse struct {
	PlayerKey string     `json:"player_key"`
	CACertPEM string     `json:"ca_pem"`
	CertPEM   string     `json:"cert_pem"`
	KeyPEM    string     `json:"key_pem"`
	ExpiresAt time.Time  `json:"expires_at"`
	Broker    BrokerInfo `json:"broker"`
}

type RegisterPlayerRequest struct {
	RegistrationCode string `json:"registration_code" binding:"required"`
	Name             string `json:"name" binding:"required,max=100"`
}

type PlayerResponse struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	DeviceModel        string     `json:"device_model"`
	FirmwareVersion    string     `json:"firmware_version"`
	RegistrationStatus string     `json:"registration_status"`
	ConnectionStatus   string     `json:"connection_status"`
	LastSeenAt         *time.Time `json:"last_seen_at,omitempty"`
	CurrentPostID      *int64     `json:"current_post_id,omitempty"`
	CertSerialNumber   string     `json:"cert_serial_number,omitempty"`
	CertExpiresAt      *time.Time `json:"cert_expires_at,omitempty"`
	RegisteredAt       *time.Time `json:"registered_at,omitempty"`
}

type ListPlayersResponse struct {
	Players []PlayerResponse `json:"players"`
	Count   int              `json:"count"`
}
