package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/config"
)

// defaultConfigFile is read when -config is not given and the file exists.
const defaultConfigFile = "dlink.yaml"

// options holds the flags shared by every command.
type options struct {
	configPath string
	envFile    string
	host       string
	pin        string
	user       string
	timeout    string
	verbose    bool
	noSpinner  bool
}

func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}

	fs.StringVar(&o.configPath, "config", "", "path to configuration file (default: "+defaultConfigFile+" if present)")
	fs.StringVar(&o.envFile, "env", ".env", "path to .env file (ignored if missing)")
	fs.StringVar(&o.host, "host", "", "device address, host or host:port (env "+config.EnvHost+")")
	fs.StringVar(&o.pin, "pin", "", "device PIN (env "+config.EnvPIN+")")
	fs.StringVar(&o.user, "user", "", "device username (default Admin)")
	fs.StringVar(&o.timeout, "timeout", "", "per-request timeout, e.g. 10s")
	fs.BoolVar(&o.verbose, "verbose", false, "log protocol details to stderr")
	fs.BoolVar(&o.noSpinner, "no-spinner", false, "disable the progress spinner")

	return o
}

// resolveConfig layers flags over the config file over the defaults. DLINK_*
// environment variables only fill a host or PIN still blank after that; a
// config file can reference them as ${DLINK_HOST}. A missing PIN is prompted
// for when stdin is a terminal.
func resolveConfig(o *options) (config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return config.Config{}, err
	}

	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if o.host != "" {
		cfg.Host = o.host
	}

	if o.pin != "" {
		cfg.Password = o.pin
	}

	if o.user != "" {
		cfg.Username = o.user
	}

	if o.timeout != "" {
		cfg.Timeout = o.timeout
	}

	if o.verbose {
		cfg.LogLevel = "debug"
	}

	cfg.ApplyEnv()

	if cfg.Password == "" && cfg.Host != "" && isatty.IsTerminal(os.Stdin.Fd()) {
		pin, err := promptPIN(cfg.Host)
		if err != nil {
			return config.Config{}, err
		}

		cfg.Password = pin
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func spinnerEnabled(o *options) bool {
	return !o.noSpinner && !o.verbose && isatty.IsTerminal(os.Stderr.Fd())
}
