package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"foldcast/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for foldcast.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Logging   Logging   `yaml:"logging"`
	Fetch     Fetch     `yaml:"fetch"`
	Backtest  Backtest  `yaml:"backtest"`
	Align     Align     `yaml:"align"`
	Estimator Estimator `yaml:"estimator"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and the market-data endpoint.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Fetch controls dataset downloads from Alpaca.
type Fetch struct {
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	Feed            string `yaml:"feed"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Backtest holds the fold layout and run behaviour.
type Backtest struct {
	InitialTrainSize int      `yaml:"initial_train_size" json:"initial_train_size"`
	TestSize         int      `yaml:"test_size" json:"test_size"`
	Step             int      `yaml:"step" json:"step"`
	Refit            bool     `yaml:"refit" json:"refit"`
	Gap              int      `yaml:"gap" json:"gap"`
	ExogLag          int      `yaml:"exog_lag" json:"exog_lag"`
	MinTrainSize     int      `yaml:"min_train_size" json:"min_train_size"`
	Metrics          []string `yaml:"metrics" json:"metrics"`
	Aggregation      string   `yaml:"aggregation" json:"aggregation"`
	ContinueOnError  bool     `yaml:"continue_on_error" json:"continue_on_error"`
	Workers          int      `yaml:"workers" json:"workers"`
	// FoldTimeout is a Go duration string such as "30s". Empty disables it.
	FoldTimeout string `yaml:"fold_timeout" json:"fold_timeout"`
}

// Align selects how input series are normalized onto one index.
type Align struct {
	Mode      string `yaml:"mode" json:"mode"`
	Frequency int64  `yaml:"frequency" json:"frequency"`
	MinLength int    `yaml:"min_length" json:"min_length"`
	MaxLength int    `yaml:"max_length" json:"max_length"`
	Impute    string `yaml:"impute" json:"impute"`
}

// Estimator names the forecasting model and its tunables.
type Estimator struct {
	Name   string  `yaml:"name" json:"name"`
	Lags   int     `yaml:"lags" json:"lags"`
	Alpha  float64 `yaml:"alpha" json:"alpha"`
	Window int     `yaml:"window" json:"window"`
	Period int     `yaml:"period" json:"period"`
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

// Default returns the configuration used when a field is absent from the
// YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/foldcast.db",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Fetch: Fetch{
			StartDate:       "2020-01-01",
			Feed:            "sip",
			BatchSize:       100,
			RateLimitPerMin: 200,
		},
		Backtest: Backtest{
			TestSize:    1,
			Step:        1,
			Metrics:     []string{"mean_absolute_error"},
			Aggregation: string(domain.AggregateMean),
			Workers:     1,
		},
		Align: Align{
			Mode:   "union",
			Impute: "none",
		},
		Estimator: Estimator{
			Name:   "naive",
			Lags:   3,
			Alpha:  1,
			Period: 7,
		},
	}
}

// Timeout parses FoldTimeout.
func (b Backtest) Timeout() (time.Duration, error) {
	if b.FoldTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.FoldTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: fold_timeout: %v", domain.ErrConfiguration, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: fold_timeout must be >= 0, got %s", domain.ErrConfiguration, d)
	}
	return d, nil
}

// Validate checks the fields that do not depend on registries or data.
func (b Backtest) Validate() error {
	switch {
	case b.InitialTrainSize <= 0:
		return fmt.Errorf("%w: initial_train_size must be > 0, got %d", domain.ErrConfiguration, b.InitialTrainSize)
	case b.TestSize <= 0:
		return fmt.Errorf("%w: test_size must be > 0, got %d", domain.ErrConfiguration, b.TestSize)
	case b.Step <= 0:
		return fmt.Errorf("%w: step must be > 0, got %d", domain.ErrConfiguration, b.Step)
	case b.Gap < 0:
		return fmt.Errorf("%w: gap must be >= 0, got %d", domain.ErrConfiguration, b.Gap)
	case b.ExogLag < 0:
		return fmt.Errorf("%w: exog_lag must be >= 0, got %d", domain.ErrConfiguration, b.ExogLag)
	case b.MinTrainSize < 0:
		return fmt.Errorf("%w: min_train_size must be >= 0, got %d", domain.ErrConfiguration, b.MinTrainSize)
	case b.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0, got %d", domain.ErrConfiguration, b.Workers)
	case len(b.Metrics) == 0:
		return fmt.Errorf("%w: at least one metric is required", domain.ErrConfiguration)
	case b.Aggregation != "" && !domain.Aggregation(b.Aggregation).Valid():
		return fmt.Errorf("%w: unknown aggregation %q", domain.ErrConfiguration, b.Aggregation)
	}
	_, err := b.Timeout()
	return err
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over Default(),
// and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default() plus
// environment overrides otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return Load(path)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("FOLDCAST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backtest.Workers = n
		}
	}

	// Standard Alpaca env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
