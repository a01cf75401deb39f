package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string used by the polled
	// public data source to avoid bot detection.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	FeedVariantSaxo  = "saxo"
	FeedVariantYahoo = "yahoo"

	BrokerVariantSaxo  = "saxo"
	BrokerVariantPaper = "paper"
)

// Config holds every setting the terminal core consumes at startup.
// Sensitive values can be overridden through environment variables after load.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		Variant     string   `yaml:"variant"` // "saxo" (streaming) or "yahoo" (polled, 0-60s delayed)
		Instruments []string `yaml:"instruments"`

		StalenessThresholdSec int `yaml:"staleness_threshold_sec"`

		Saxo struct {
			WSURL      string `yaml:"ws_url"`
			RestURL    string `yaml:"rest_url"`
			Token      string `yaml:"token"`
			AccountKey string `yaml:"account_key"`
			ClientKey  string `yaml:"client_key"`
		} `yaml:"saxo"`

		Yahoo struct {
			URL             string `yaml:"url"`
			PollIntervalSec int    `yaml:"poll_interval_sec"`
		} `yaml:"yahoo"`
	} `yaml:"feed"`

	Monitor struct {
		TickIntervalMS int `yaml:"tick_interval_ms"`
		MaxAttempts    int `yaml:"max_attempts"` // broker submissions per order before Rejected
	} `yaml:"monitor"`

	Broker struct {
		Variant string `yaml:"variant"` // "saxo" or "paper"
	} `yaml:"broker"`

	Account struct {
		StartingCash string `yaml:"starting_cash"` // decimal string, e.g. "1000000"
		Currency     string `yaml:"currency"`
	} `yaml:"account"`

	Storage struct {
		Path string `yaml:"path"` // empty selects the per-user default location
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides for secrets, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// TickInterval returns the monitor scan interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Monitor.TickIntervalMS) * time.Millisecond
}

// StalenessThreshold returns the quote freshness limit for trigger decisions.
func (c *Config) StalenessThreshold() time.Duration {
	return time.Duration(c.Feed.StalenessThresholdSec) * time.Second
}

// StartingCash returns the parsed opening cash balance. Validate has already
// rejected unparseable values.
func (c *Config) StartingCash() decimal.Decimal {
	cash, err := decimal.NewFromString(c.Account.StartingCash)
	if err != nil {
		return decimal.Zero
	}
	return cash
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Feed.Variant {
	case FeedVariantSaxo:
		if !strings.HasPrefix(c.Feed.Saxo.WSURL, "ws://") && !strings.HasPrefix(c.Feed.Saxo.WSURL, "wss://") {
			return fmt.Errorf("invalid Saxo WS URL: %s", c.Feed.Saxo.WSURL)
		}
	case FeedVariantYahoo:
		if c.Feed.Yahoo.PollIntervalSec <= 0 {
			return fmt.Errorf("yahoo poll interval must be positive")
		}
	default:
		return fmt.Errorf("unknown feed variant: %q", c.Feed.Variant)
	}

	if len(c.Feed.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	if c.Feed.StalenessThresholdSec <= 0 {
		return fmt.Errorf("staleness threshold must be positive")
	}

	if c.Monitor.TickIntervalMS <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.Monitor.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}

	switch c.Broker.Variant {
	case BrokerVariantSaxo, BrokerVariantPaper:
	default:
		return fmt.Errorf("unknown broker variant: %q", c.Broker.Variant)
	}

	cash, err := decimal.NewFromString(c.Account.StartingCash)
	if err != nil {
		return fmt.Errorf("starting cash is not a valid decimal: %q", c.Account.StartingCash)
	}
	if cash.IsNegative() {
		return fmt.Errorf("starting cash must not be negative")
	}

	return nil
}

// overrideWithEnv replaces sensitive values when set in the environment.
func overrideWithEnv(cfg *Config) {
	if token := os.Getenv("FX_SAXO_TOKEN"); token != "" {
		cfg.Feed.Saxo.Token = token
	}
	if key := os.Getenv("FX_SAXO_ACCOUNT_KEY"); key != "" {
		cfg.Feed.Saxo.AccountKey = key
	}
	if key := os.Getenv("FX_SAXO_CLIENT_KEY"); key != "" {
		cfg.Feed.Saxo.ClientKey = key
	}
}
