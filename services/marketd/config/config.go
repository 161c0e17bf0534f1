package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends understood by the daemon.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendSQLite  = "sqlite"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for marketd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Deployment    string          `yaml:"deployment"`
	LogLevel      string          `yaml:"log_level"`
	Storage       StorageConfig   `yaml:"storage"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Devnet        DevnetConfig    `yaml:"devnet"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuthConfig tunes caller token validation. The HMAC secret is read from the
// environment, never from the file.
type AuthConfig struct {
	Issuer    string   `yaml:"issuer"`
	Audience  string   `yaml:"audience"`
	ClockSkew Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds requests per caller.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// TelemetryConfig toggles OpenTelemetry export.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// DevnetConfig seeds an in-process development network: token contracts
// hosted by the daemon, their initial mints and native currency credits.
type DevnetConfig struct {
	Contracts []ContractConfig `yaml:"contracts"`
	Faucet    []FaucetCredit   `yaml:"faucet"`
}

// ContractConfig describes a hosted token contract. Address takes precedence;
// otherwise the address is derived from Label.
type ContractConfig struct {
	Label   string       `yaml:"label"`
	Address string       `yaml:"address"`
	Mints   []MintConfig `yaml:"mints"`
}

// MintConfig issues Amount units of TokenID to Owner. ApproveMarketplace
// grants the marketplace custody account operator rights over the token.
type MintConfig struct {
	Owner              string `yaml:"owner"`
	TokenID            uint64 `yaml:"token_id"`
	Amount             uint64 `yaml:"amount"`
	ApproveMarketplace bool   `yaml:"approve_marketplace"`
}

// FaucetCredit credits native currency to an account at startup.
type FaucetCredit struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.Deployment == "" {
		cfg.Deployment = "services/marketd/market.toml"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendLevelDB
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend != BackendMemory {
		switch cfg.Storage.Backend {
		case BackendSQLite:
			cfg.Storage.Path = "/var/data/marketd.sqlite"
		default:
			cfg.Storage.Path = "/var/data/marketd"
		}
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
}

func validate(cfg Config) error {
	switch cfg.Storage.Backend {
	case BackendMemory, BackendLevelDB, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	for i, contract := range cfg.Devnet.Contracts {
		if strings.TrimSpace(contract.Label) == "" && strings.TrimSpace(contract.Address) == "" {
			return fmt.Errorf("devnet contract %d needs a label or an address", i)
		}
		for j, mint := range contract.Mints {
			if strings.TrimSpace(mint.Owner) == "" {
				return fmt.Errorf("devnet contract %d mint %d: owner required", i, j)
			}
			if mint.Amount == 0 {
				return fmt.Errorf("devnet contract %d mint %d: amount must be positive", i, j)
			}
		}
	}
	for i, credit := range cfg.Devnet.Faucet {
		if strings.TrimSpace(credit.Address) == "" {
			return fmt.Errorf("devnet faucet %d: address required", i)
		}
		if strings.TrimSpace(credit.Amount) == "" {
			return fmt.Errorf("devnet faucet %d: amount required", i)
		}
	}
	return nil
}
