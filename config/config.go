package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
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

// Config captures runtime configuration for fundd.
type Config struct {
	ListenAddress string           `yaml:"listen"`
	StatePath     string           `yaml:"state"`
	HistoryPath   string           `yaml:"history"`
	Environment   string           `yaml:"environment"`
	AuthSecret    string           `yaml:"auth_secret"`
	Identities    IdentitiesConfig `yaml:"identities"`
	Venue         VenueConfig      `yaml:"venue"`
	Basket        BasketConfig     `yaml:"basket"`
	Token         TokenConfig      `yaml:"token"`
	RateLimit     RateLimitConfig  `yaml:"rate_limit"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// IdentitiesConfig names the three fixed fund accounts.
type IdentitiesConfig struct {
	Owner string `yaml:"owner"`
	Admin string `yaml:"admin"`
	Fund  string `yaml:"fund"`
}

// VenueConfig points at the exchange and its sibling services.
type VenueConfig struct {
	Endpoint        string   `yaml:"endpoint"`
	Account         string   `yaml:"account"`
	Referral        string   `yaml:"referral"`
	WrapperEndpoint string   `yaml:"wrapper_endpoint"`
	PayerEndpoint   string   `yaml:"payer_endpoint"`
	Timeout         Duration `yaml:"timeout"`
}

// BasketConfig describes the tracked portfolio.
type BasketConfig struct {
	NativeToken string        `yaml:"native_token"`
	Assets      []AssetConfig `yaml:"assets"`
}

// AssetConfig is one tracked asset and its venue pool.
type AssetConfig struct {
	Symbol  string `yaml:"symbol"`
	TokenID string `yaml:"token_id"`
	PoolID  uint64 `yaml:"pool_id"`
}

// TokenConfig carries the fund unit metadata and genesis supply.
type TokenConfig struct {
	Name          string `yaml:"name"`
	Symbol        string `yaml:"symbol"`
	Decimals      uint8  `yaml:"decimals"`
	Icon          string `yaml:"icon"`
	InitialSupply string `yaml:"initial_supply"`
}

// RateLimitConfig throttles outbound venue traffic.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls optional log rotation. With an empty file the
// service logs to stdout only.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
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
		cfg.ListenAddress = ":7085"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "/var/data/fundd"
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = "/var/data/fundd-history.sqlite"
	}
	if cfg.Venue.Timeout.Duration == 0 {
		cfg.Venue.Timeout.Duration = 10 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.Token.Decimals == 0 {
		cfg.Token.Decimals = 8
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 28
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Venue.Endpoint) == "" {
		return fmt.Errorf("venue endpoint must be configured")
	}
	if strings.TrimSpace(cfg.Venue.Account) == "" {
		return fmt.Errorf("venue account must be configured")
	}
	if strings.TrimSpace(cfg.Basket.NativeToken) == "" {
		return fmt.Errorf("basket native token must be configured")
	}
	if len(cfg.Basket.Assets) == 0 {
		return fmt.Errorf("at least one basket asset must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Basket.Assets))
	for i, asset := range cfg.Basket.Assets {
		tokenID := strings.TrimSpace(asset.TokenID)
		if tokenID == "" {
			return fmt.Errorf("basket asset %d missing token_id", i)
		}
		if _, ok := seen[tokenID]; ok {
			return fmt.Errorf("basket asset %s configured twice", tokenID)
		}
		seen[tokenID] = struct{}{}
	}
	if strings.TrimSpace(cfg.Identities.Owner) == "" {
		return fmt.Errorf("owner identity must be configured")
	}
	if strings.TrimSpace(cfg.Identities.Admin) == "" {
		return fmt.Errorf("admin identity must be configured")
	}
	if strings.TrimSpace(cfg.Identities.Fund) == "" {
		return fmt.Errorf("fund identity must be configured")
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return fmt.Errorf("auth secret must be configured")
	}
	return nil
}
