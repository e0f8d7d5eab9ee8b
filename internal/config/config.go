// Package config loads service settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"larpx402/internal/solana"
)

// EnvPrefix namespaces environment variables, e.g. LARPX_AGGREGATOR_API_KEY.
const EnvPrefix = "LARPX"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the resolved service configuration.
type Config struct {
	Network        solana.Network
	RPCEndpoint    string
	WSEndpoint     string
	ConfirmTimeout time.Duration

	AggregatorURL    string
	AggregatorAPIKey string
	ImageGenURL      string
	ImageGenAPIKey   string

	StorageBackend string
	PostgresDSN    string
	ClickHouseDSN  string

	HTTPAddr    string
	MetricsAddr string

	LogLevel  string
	LogFormat string
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("network", string(solana.Mainnet))
	v.SetDefault("aggregator.base_url", "https://public-api-v2.bags.fm/api/v1")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	return v
}

// Load reads configFile when set and resolves the configuration from v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	network, err := solana.ParseNetwork(v.GetString("network"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network:          network,
		RPCEndpoint:      v.GetString("rpc_endpoint"),
		WSEndpoint:       v.GetString("ws_endpoint"),
		ConfirmTimeout:   v.GetDuration("confirm_timeout"),
		AggregatorURL:    v.GetString("aggregator.base_url"),
		AggregatorAPIKey: v.GetString("aggregator.api_key"),
		ImageGenURL:      v.GetString("imagegen.base_url"),
		ImageGenAPIKey:   v.GetString("imagegen.api_key"),
		StorageBackend:   strings.ToLower(v.GetString("storage.backend")),
		PostgresDSN:      v.GetString("postgres_dsn"),
		ClickHouseDSN:    v.GetString("clickhouse_dsn"),
		HTTPAddr:         v.GetString("http_addr"),
		MetricsAddr:      v.GetString("metrics_addr"),
		LogLevel:         v.GetString("log.level"),
		LogFormat:        v.GetString("log.format"),
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = network.ConfirmTimeout()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.StorageBackend))
	}
	if c.AggregatorURL == "" {
		errs = append(errs, errors.New("aggregator.base_url is required"))
	}
	if c.ConfirmTimeout < time.Second {
		errs = append(errs, fmt.Errorf("confirm_timeout %v is too short", c.ConfirmTimeout))
	}
	return errors.Join(errs...)
}

// Endpoints returns the ledger endpoint overrides.
func (c *Config) Endpoints() solana.Endpoints {
	return solana.Endpoints{RPC: c.RPCEndpoint, WS: c.WSEndpoint}
}
