package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pixelframe/playerhub/internal/api/http/dto"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func runProvision(args []string) error {
	fs := flag.NewFlagSet("provision", flag.ExitOnError)
	server := fs.String("server", config.Server.URL, "Server URL (e.g., http://server:8080)")
	model := fs.String("model", config.Player.DeviceModel, "Device model")
	firmware := fs.String("firmware", config.Player.FirmwareVersion, "Firmware version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reqBody, err := json.Marshal(dto.ProvisionRequest{DeviceModel: *model, FirmwareVersion: *firmware})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp dto.ProvisionResponse
	if err := call(http.MethodPost, *server+"/api/player/provision", reqBody, http.StatusCreated, &resp); err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}

	st := &State{
		PlayerKey:        resp.PlayerKey,
		RegistrationCode: resp.RegistrationCode,
		CodeExpiresAt:    resp.RegistrationCodeExpiresAt,
		BrokerHost:       resp.Broker.Host,
		BrokerPort:       resp.Broker.Port,
	}
	if err := saveState(config.Player.StateFile, st); err != nil {
		return err
	}

	fmt.Println("Provisioning successful!")
	fmt.Printf("  Player key:        %s\n", st.PlayerKey)
	fmt.Printf("  Registration code: %s\n", st.RegistrationCode)
	fmt.Printf("  Code expires at:   %s\n", st.CodeExpiresAt.Local().Format(time.RFC1123))
	fmt.Println()
	fmt.Println("Enter the code in your account, then run: playerhub-player credentials")
	return nil
}

func runCredentials(args []string) error {
	fs := flag.NewFlagSet("credentials", flag.ExitOnError)
	server := fs.String("server", config.Server.URL, "Server URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := loadState(config.Player.StateFile)
	if err != nil {
		return err
	}

	var resp dto.CredentialsResponse
	if err := call(http.MethodGet, *server+"/api/player/"+st.PlayerKey+"/credentials", nil, http.StatusOK, &resp); err != nil {
		return fmt.Errorf("failed to fetch credentials: %w", err)
	}

	if err := os.MkdirAll(config.Player.CertDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", config.Player.CertDir, err)
	}
	files := map[string]struct {
		data string
		mode os.FileMode
	}{
		"ca.pem":     {resp.CACertPEM, 0644},
		"player.pem": {resp.CertPEM, 0644},
		"player.key": {resp.KeyPEM, 0600},
	}
	for name, f := range files {
		if err := os.WriteFile(filepath.Join(config.Player.CertDir, name), []byte(f.data), f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	st.RegistrationCode = ""
	st.CodeExpiresAt = time.Time{}
	st.CertExpiresAt = resp.ExpiresAt
	st.BrokerHost = resp.Broker.Host
	st.BrokerPort = resp.Broker.Port
	if err := saveState(config.Player.StateFile, st); err != nil {
		return err
	}

	fmt.Println("Credentials saved!")
	fmt.Printf("  Directory:   %s\n", config.Player.CertDir)
	fmt.Printf("  Expires at:  %s\n", resp.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func call(method, url string, body []byte, want int, out any) error {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}
