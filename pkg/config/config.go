// Package config loads the device connection settings used by the dlink
// command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/hnap"
	"gopkg.in/yaml.v3"
)

// Environment variables that fill blank fields.
const (
	EnvHost = "DLINK_HOST"
	EnvPIN  = "DLINK_PIN"
)

// Config is the dlink configuration file.
type Config struct {
	Host     string    `yaml:"host"`
	Username string    `yaml:"username"`
	Password string    `yaml:"password"` //nolint:gosec // configuration field, not a hardcoded secret
	Timeout  string    `yaml:"timeout"`   // Per-request timeout as a duration string (e.g. "10s").
	LogLevel string    `yaml:"log_level"` // debug, info, warn or error.
	Modules  ModuleIDs `yaml:"module_ids"`
}

// ModuleIDs overrides the module IDs a plug resolves from its profile.
// Empty fields keep the resolved value.
type ModuleIDs struct {
	Socket string `yaml:"socket"`
	Power  string `yaml:"power"`
	Temp   string `yaml:"temp"`
	Motion string `yaml:"motion"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Username: hnap.DefaultUsername,
		Timeout:  "10s",
		LogLevel: "warn",
	}
}

// Load reads a YAML file over Default. Environment variables referenced as
// ${VAR} or $VAR are expanded before parsing so that the PIN can live in the
// environment (e.g. loaded from a .env file). An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	return cfg, nil
}

// ApplyEnv fills a blank host and password from DLINK_HOST and DLINK_PIN.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvHost); ok && c.Host == "" {
		c.Host = v
	}

	if v, ok := os.LookupEnv(EnvPIN); ok && c.Password == "" {
		c.Password = v
	}
}

// Validate checks that the configuration can reach a device.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("config: host is required"))
	}

	if c.Password == "" {
		errs = append(errs, errors.New("config: password is required"))
	}

	if _, err := c.RequestTimeout(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// RequestTimeout parses Timeout. An empty value means 10 seconds.
func (c Config) RequestTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 10 * time.Second, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: timeout: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}

	return d, nil
}

// Level parses LogLevel. An empty value means warn.
func (c Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}

	return l, nil
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}
