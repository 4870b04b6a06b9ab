package seeder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete seeder configuration
type Config struct {
	Version  string         `mapstructure:"version" yaml:"version"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
}

// DefaultsConfig holds default seeder settings
type DefaultsConfig struct {
	ServerURL   string        `mapstructure:"server_url" yaml:"server_url"`
	Count       int           `mapstructure:"count" yaml:"count"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	ClientPool  int           `mapstructure:"client_pool" yaml:"client_pool"`
	IPv6Ratio   float64       `mapstructure:"ipv6_ratio" yaml:"ipv6_ratio"`
	Seed        int64         `mapstructure:"seed" yaml:"seed"`
}

// LoadConfig loads configuration with cascade: ./seeder.yaml > ~/.accessctl/seeder.yaml > defaults.
// server_url has no default; callers fill it from the CLI profile and
// call Validate after applying flag overrides.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("seeder")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SEEDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".accessctl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")

	v.SetDefault("defaults.server_url", "")
	v.SetDefault("defaults.count", 500)
	v.SetDefault("defaults.concurrency", 8)
	v.SetDefault("defaults.interval", 0)
	v.SetDefault("defaults.client_pool", 50)
	v.SetDefault("defaults.ipv6_ratio", 0.2)
	v.SetDefault("defaults.seed", 0)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	d := c.Defaults
	switch {
	case d.ServerURL == "":
		return errors.New("server_url is required")
	case d.Count <= 0:
		return fmt.Errorf("count must be positive, got %d", d.Count)
	case d.Concurrency <= 0:
		return fmt.Errorf("concurrency must be positive, got %d", d.Concurrency)
	case d.ClientPool <= 0:
		return fmt.Errorf("client_pool must be positive, got %d", d.ClientPool)
	case d.IPv6Ratio < 0 || d.IPv6Ratio > 1:
		return fmt.Errorf("ipv6_ratio must be within [0, 1], got %g", d.IPv6Ratio)
	case d.Interval < 0:
		return fmt.Errorf("interval must not be negative")
	}
	return nil
}
