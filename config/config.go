package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FeedMode selects where market data comes from.
type FeedMode string

const (
	FeedSimulated FeedMode = "simulated"
	FeedBinance   FeedMode = "binance"
)

// Config is the full application configuration.
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Symbols SymbolsConfig `yaml:"symbols"`
	Engine  EngineConfig  `yaml:"engine"`
	Web     WebConfig     `yaml:"web"`
	State   StateConfig   `yaml:"state"`
}

type FeedConfig struct {
	Mode      FeedMode `yaml:"mode"`
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	// Seed drives the simulated feed's random walk.
	Seed int64 `yaml:"seed"`
}

type SymbolsConfig struct {
	Critical []string `yaml:"critical"`
	Tracked  []string `yaml:"tracked"`
}

type EngineConfig struct {
	InitialCash decimal.Decimal `yaml:"initial_cash"`
	FeeRate     decimal.Decimal `yaml:"fee_rate"`
	BuyEnabled  bool            `yaml:"buy_enabled"`
	SellEnabled bool            `yaml:"sell_enabled"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type StateConfig struct {
	// Name keys the portfolio state file. Empty disables persistence.
	Name string `yaml:"name"`
	// SaveInterval is how often the portfolio is flushed to disk.
	SaveInterval time.Duration `yaml:"save_interval"`
}

// Default returns the simulation configuration used without a config
// file.
func Default() Config {
	return Config{
		Feed: FeedConfig{Mode: FeedSimulated, Seed: 1},
		Symbols: SymbolsConfig{
			Critical: []string{"BTCUSDT", "ETHUSDT"},
			Tracked:  []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "ADAUSDT"},
		},
		Engine: EngineConfig{
			InitialCash: decimal.NewFromInt(1_000_000),
			FeeRate:     decimal.NewFromFloat(0.0005),
			BuyEnabled:  true,
			SellEnabled: true,
		},
		Web:   WebConfig{Addr: ":8080"},
		State: StateConfig{Name: "portfolio", SaveInterval: time.Minute},
	}
}

// Get loads configuration from the yaml file named by --config, with
// defaults for everything left unset.
func Get() (Config, error) {
	path := flag.String("config", "", "path to yaml config")
	flag.Parse()

	if *path == "" {
		return Default(), nil
	}
	return Load(*path)
}

// Load reads and validates a yaml config file.
func Load(path string) (Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Feed.Mode {
	case FeedSimulated:
	case FeedBinance:
		if c.Feed.APIKey == "" || c.Feed.APISecret == "" {
			return errors.New("binance feed requires api_key and api_secret")
		}
	default:
		return errors.Errorf("unknown feed mode %q", c.Feed.Mode)
	}

	if len(c.Symbols.Tracked) == 0 {
		return errors.New("at least one tracked symbol is required")
	}
	if c.Engine.InitialCash.LessThanOrEqual(decimal.Zero) {
		return errors.New("initial_cash must be positive")
	}
	if c.Engine.FeeRate.IsNegative() {
		return errors.New("fee_rate must not be negative")
	}
	if c.Web.Addr == "" {
		return errors.New("web addr is required")
	}
	if c.State.SaveInterval < 0 {
		return errors.New("save_interval must not be negative")
	}
	return nil
}
