package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pixelframe/playerhub/internal/api/http"
	"github.com/pixelframe/playerhub/internal/auth"
	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/db"
)

type Config struct {
	Log       LogConfig
	Http      http.Config
	DB        db.Config
	Auth      auth.Config
	MQTT      broker.Config
	NATS      NATSConfig
	CA        cert.Config
	BrokerTLS BrokerTLSConfig `mapstructure:"broker_tls"`
	Players   PlayersConfig
	Metrics   MetricsConfig
}

// BrokerTLSConfig describes the server certificate for the broker's TLS
// listener, issued from the player CA when missing.
type BrokerTLSConfig struct {
	CertFile    string `mapstructure:"cert_file"`
	KeyFile     string `mapstructure:"key_file"`
	DomainNames string `mapstructure:"domain_names"`
	IPAddresses string `mapstructure:"ip_addresses"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	CounterBucket string `mapstructure:"counter_bucket"`
	DedupBucket   string `mapstructure:"dedup_bucket"`
	ViewStream    string `mapstructure:"view_stream"`
	ViewSubject   string `mapstructure:"view_subject"`
}

type PlayersConfig struct {
	CodeTTL         time.Duration `mapstructure:"code_ttl"`
	MaxPerOwner     int           `mapstructure:"max_per_owner"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/playerhub-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("nats.counter_bucket", "playerhub_counters")
	viper.SetDefault("nats.dedup_bucket", "playerhub_dedup")
	viper.SetDefault("nats.view_stream", "PLAYERHUB_VIEWS")
	viper.SetDefault("nats.view_subject", "playerhub.views")
	viper.SetDefault("players.cleanup_interval", "5m")

	_ = viper.BindEnv("db.url", "DATABASE_URL")
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		redacted := config
		redacted.Auth.JWTSecret = "***"
		redacted.MQTT.Password = "***"
		redacted.Http.AdminAPIKey = "***"
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
