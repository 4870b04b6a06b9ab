// Package config stores accessctl connection profiles.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultServerURL is used when no profile or override names a server.
const DefaultServerURL = "http://localhost:4000"

type Config struct {
	CurrentProfile string              `mapstructure:"current_profile" yaml:"current_profile"`
	Profiles       map[string]*Profile `mapstructure:"profiles" yaml:"profiles"`
	Defaults       Defaults            `mapstructure:"defaults" yaml:"defaults"`
	path           string
}

// Profile points accessctl at one access log service.
type Profile struct {
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
}

// Defaults apply when the selected profile does not exist.
type Defaults struct {
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
}

func Default() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
		Defaults:       Defaults{ServerURL: DefaultServerURL},
	}
}

// DefaultPath is $ACCESSCTL_CONFIG_DIR/config.yaml, falling back to
// $HOME/.accessctl/config.yaml.
func DefaultPath() (string, error) {
	dir := os.Getenv("ACCESSCTL_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".accessctl")
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads cfgFile (or DefaultPath) with ACCESSCTL_* environment
// overrides. A missing file yields defaults.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	v := viper.New()
	v.SetDefault("current_profile", "default")
	v.SetDefault("defaults.server_url", DefaultServerURL)

	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ACCESSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("defaults.server_url", "ACCESSCTL_SERVER_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Default()
	cfg.path = cfgFile
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	return cfg, nil
}

func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// SaveProfile stores a profile, makes it current and writes the file.
func (c *Config) SaveProfile(name, serverURL string) error {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = &Profile{ServerURL: strings.TrimRight(serverURL, "/")}
	c.CurrentProfile = name
	return c.Save()
}

func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}
	return profile, nil
}

func (c *Config) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}
	delete(c.Profiles, name)
	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}
	return c.Save()
}

// ServerURL resolves the server for profile, falling back to defaults.
func (c *Config) ServerURL(profile string) string {
	if p, err := c.GetProfile(profile); err == nil && p.ServerURL != "" {
		return p.ServerURL
	}
	return c.Defaults.ServerURL
}
