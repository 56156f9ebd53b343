// Package common provides shared configuration for the mpcauction commands.
//
// Both the party daemon and the auctioneer CLI read the same YAML file, so a
// single file can describe a whole deployment: the roster, the bearer tokens
// (explicit or derived from a shared secret), the comparison parameters and
// the optional PostgreSQL store for auction records.
package common

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/flashbots/mpcauction/auction"
	"github.com/flashbots/mpcauction/protocol"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration shared by cmd/party and cmd/auctioneer.
type Config struct {
	// Party daemon settings.
	HTTPAddr    string   `yaml:"http_addr"`
	MetricsAddr string   `yaml:"metrics_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	// PublicURL is the address other parties and the auctioneer use for
	// this party. It selects the derived token.
	PublicURL string `yaml:"public_url"`
	// Token is this party's bearer token. It takes precedence over a
	// derived token.
	Token string `yaml:"token"`

	// Roster and authentication, used by the auctioneer and by parties
	// talking to each other.
	Parties     []string          `yaml:"parties"`
	Threshold   int               `yaml:"threshold"`
	Tokens      map[string]string `yaml:"tokens"`
	TokenSecret string            `yaml:"token_secret"`

	RequestTimeout time.Duration `yaml:"request_timeout"`

	Log        LogConfig        `yaml:"log"`
	Comparison ComparisonConfig `yaml:"comparison"`

	// Postgres enables the PostgreSQL record store when Host is set.
	Postgres auction.PostgresConfig `yaml:"postgres"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// ComparisonConfig holds the public comparison parameters.
type ComparisonConfig struct {
	L int `yaml:"l"`
	K int `yaml:"k"`
	// Prime is decimal, or hex with a 0x prefix.
	Prime         string `yaml:"prime"`
	Repetitions   int    `yaml:"repetitions"`
	Strategy      string `yaml:"strategy"`
	FailurePolicy string `yaml:"failure_policy"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	params := protocol.DefaultParams()
	return &Config{
		HTTPAddr:       ":8080",
		Threshold:      2,
		RequestTimeout: 30 * time.Second,
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Comparison: ComparisonConfig{
			L:             params.L,
			K:             params.K,
			Prime:         params.Prime.String(),
			Repetitions:   params.Repetitions,
			Strategy:      string(params.Strategy),
			FailurePolicy: string(params.FailurePolicy),
		},
		Postgres: auction.PostgresConfig{Port: 5432},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Params converts the comparison section and validates it.
func (c *Config) Params() (*protocol.Params, error) {
	prime, ok := new(big.Int).SetString(c.Comparison.Prime, 0)
	if !ok {
		return nil, fmt.Errorf("invalid prime %q", c.Comparison.Prime)
	}
	params := &protocol.Params{
		L:             c.Comparison.L,
		K:             c.Comparison.K,
		Prime:         prime,
		Repetitions:   c.Comparison.Repetitions,
		Strategy:      protocol.Strategy(c.Comparison.Strategy),
		FailurePolicy: protocol.FailurePolicy(c.Comparison.FailurePolicy),
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// Validate checks the settings the auctioneer needs.
func (c *Config) Validate() error {
	if len(c.Parties) == 0 {
		return fmt.Errorf("parties is required (via --parties or config file)")
	}
	if err := protocol.ValidateThreshold(c.Threshold, len(c.Parties)); err != nil {
		return err
	}
	_, err := c.Params()
	return err
}
