package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the bridge service configuration
type Config struct {
	Server       ServerConfig                 `mapstructure:"server"`
	Database     DatabaseConfig               `mapstructure:"database"`
	Source       ChainConfig                  `mapstructure:"source"`
	Destinations map[string]DestinationConfig `mapstructure:"destinations"`
	Attestation  AttestationConfig            `mapstructure:"attestation"`
	Bridge       BridgeConfig                 `mapstructure:"bridge"`
	Monitoring   MonitoringConfig             `mapstructure:"monitoring"`
	Logging      LoggingConfig                `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database connection settings. When Host is
// empty the service falls back to the in-memory status store.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ChainConfig contains EVM chain client settings
type ChainConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	ChainID             int64         `mapstructure:"chain_id"`
	PrivateKey          string        `mapstructure:"private_key"`
	USDCContract        string        `mapstructure:"usdc_contract"`
	TokenMessenger      string        `mapstructure:"token_messenger"`
	MessageTransmitter  string        `mapstructure:"message_transmitter"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
	MaxGasPrice         string        `mapstructure:"max_gas_price"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
}

// DestinationConfig contains settings for a claimable destination chain
type DestinationConfig struct {
	ChainConfig `mapstructure:",squash"`
	Domain      uint32 `mapstructure:"domain"`
}

// AttestationConfig contains attestation service settings
type AttestationConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BridgeConfig contains bridge operation settings
type BridgeConfig struct {
	// FlatFee is the service fee in USDC smallest units, independent
	// of transfer size.
	FlatFee int64 `mapstructure:"flat_fee"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "cctp_bridge")

	// Source chain defaults (Ethereum mainnet, CCTP domain 0)
	viper.SetDefault("source.gas_limit", 300000)
	viper.SetDefault("source.receipt_poll_interval", "3s")

	// Attestation defaults. Circle's attestation window is a known
	// multi-minute range, so a fixed interval is enough.
	viper.SetDefault("attestation.base_url", "https://iris-api.circle.com/attestations")
	viper.SetDefault("attestation.poll_interval", "5s")
	viper.SetDefault("attestation.max_attempts", 180)
	viper.SetDefault("attestation.request_timeout", "10s")

	// Bridge defaults
	viper.SetDefault("bridge.flat_fee", 0)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Source.RPCURL == "" {
		return fmt.Errorf("source.rpc_url is required")
	}
	if config.Source.USDCContract == "" {
		return fmt.Errorf("source.usdc_contract is required")
	}
	if config.Source.TokenMessenger == "" {
		return fmt.Errorf("source.token_messenger is required")
	}
	if config.Source.MessageTransmitter == "" {
		return fmt.Errorf("source.message_transmitter is required")
	}
	if len(config.Destinations) == 0 {
		return fmt.Errorf("at least one destination chain is required")
	}
	for name, dest := range config.Destinations {
		if dest.RPCURL == "" {
			return fmt.Errorf("destinations.%s.rpc_url is required", name)
		}
		if dest.MessageTransmitter == "" {
			return fmt.Errorf("destinations.%s.message_transmitter is required", name)
		}
	}
	if config.Attestation.BaseURL == "" {
		return fmt.Errorf("attestation.base_url is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
