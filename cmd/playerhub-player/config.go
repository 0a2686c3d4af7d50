package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log    LogConfig
	Server ServerConfig
	Player PlayerConfig
}

type ServerConfig struct {
	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
}

type PlayerConfig struct {
	DeviceModel       string        `mapstructure:"device_model"`
	FirmwareVersion   string        `mapstructure:"firmware_version"`
	StateFile         string        `mapstructure:"state_file"`
	CertDir           string        `mapstructure:"cert_dir"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// State is what the player remembers between runs.
type State struct {
	PlayerKey        string    `yaml:"player_key"`
	RegistrationCode string    `yaml:"registration_code,omitempty"`
	CodeExpiresAt    time.Time `yaml:"registration_code_expires_at,omitempty"`
	BrokerHost       string    `yaml:"broker_host"`
	BrokerPort       int       `yaml:"broker_port"`
	CertExpiresAt    time.Time `yaml:"cert_expires_at,omitempty"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/playerhub-player")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.url", "http://localhost:8080")
	viper.SetDefault("server.namespace", "playerhub")
	viper.SetDefault("player.device_model", "pf-64")
	viper.SetDefault("player.firmware_version", "0.0.0-dev")
	viper.SetDefault("player.state_file", "./player-state.yaml")
	viper.SetDefault("player.cert_dir", "./certs")
	viper.SetDefault("player.heartbeat_interval", "30s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)
}

func loadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	if st.PlayerKey == "" {
		return nil, fmt.Errorf("state file %s has no player key, run provision first", path)
	}
	return &st, nil
}

func saveState(path string, st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
