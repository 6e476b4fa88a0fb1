package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Venues           []string       `mapstructure:"venues"`
	Pair             string         `mapstructure:"pair"`
	SampleIntervalMS int            `mapstructure:"sample_interval_ms"`
	LookbackMin      int            `mapstructure:"lookback_min"`
	ThresholdBps     float64        `mapstructure:"threshold_bps"`
	PersistenceMS    int            `mapstructure:"persistence_ms"`
	LatencyMS        int            `mapstructure:"latency_ms"`
	StalenessMS      int            `mapstructure:"staleness_ms"`
	Costs            CostsConfig    `mapstructure:"costs_bps"`
	OutDir           string         `mapstructure:"out_dir"`
	Database         DatabaseConfig `mapstructure:"database"`
}

// CostsConfig defines the per-action trading frictions in basis points.
type CostsConfig struct {
	FeeBps        float64 `mapstructure:"fee_bps"`
	HalfSpreadBps float64 `mapstructure:"half_spread_bps"`
	SlippageBps   float64 `mapstructure:"slippage_bps"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN builds the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// Persistence returns the persistence filter as a duration.
func (c Config) Persistence() time.Duration {
	return time.Duration(c.PersistenceMS) * time.Millisecond
}

// Latency returns the simulated execution latency as a duration.
func (c Config) Latency() time.Duration {
	return time.Duration(c.LatencyMS) * time.Millisecond
}

// Staleness returns the quote staleness bound as a duration.
func (c Config) Staleness() time.Duration {
	return time.Duration(c.StalenessMS) * time.Millisecond
}

// Lookback returns the analysis window length as a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.LookbackMin) * time.Minute
}

// SampleInterval returns the collector sampling interval as a duration.
func (c Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMS) * time.Millisecond
}

// LoadConfig reads configuration from file or environment variables and
// validates it. A validation failure is fatal: the run must not proceed
// with silently substituted defaults.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err = viper.ReadInConfig(); err != nil {
		return
	}
	if err = viper.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if len(c.Venues) < 2 {
		return fmt.Errorf("config: need at least 2 venues, got %d", len(c.Venues))
	}
	if c.ThresholdBps <= 0 {
		return fmt.Errorf("config: threshold_bps must be > 0, got %g", c.ThresholdBps)
	}
	if c.PersistenceMS < 0 {
		return fmt.Errorf("config: persistence_ms must be >= 0, got %d", c.PersistenceMS)
	}
	if c.LatencyMS < 0 {
		return fmt.Errorf("config: latency_ms must be >= 0, got %d", c.LatencyMS)
	}
	if c.StalenessMS <= 0 {
		return fmt.Errorf("config: staleness_ms must be > 0, got %d", c.StalenessMS)
	}
	if c.SampleIntervalMS <= 0 {
		return fmt.Errorf("config: sample_interval_ms must be > 0, got %d", c.SampleIntervalMS)
	}
	if c.LookbackMin <= 0 {
		return fmt.Errorf("config: lookback_min must be > 0, got %d", c.LookbackMin)
	}
	if c.Costs.FeeBps < 0 || c.Costs.HalfSpreadBps < 0 || c.Costs.SlippageBps < 0 {
		return fmt.Errorf("config: costs_bps values must be >= 0, got %+v", c.Costs)
	}
	return nil
}
