package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete coxswain configuration.
type Config struct {
	Provider Provider `yaml:"provider"`
	Session  Session  `yaml:"session"`
	Executor Executor `yaml:"executor"`
	Database Database `yaml:"database"`
	Logging  Logging  `yaml:"logging"`
}

// Provider selects the reasoning engine and its credentials.
type Provider struct {
	Name   string `yaml:"name"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Session holds per-session timing configuration.
type Session struct {
	GatewayTimeout    time.Duration `yaml:"-"`
	CommandTimeout    time.Duration `yaml:"-"`
	InactivityTimeout time.Duration `yaml:"-"`

	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// Raw string values for YAML unmarshaling
	GatewayTimeoutRaw    string `yaml:"gateway_timeout"`
	CommandTimeoutRaw    string `yaml:"command_timeout"`
	InactivityTimeoutRaw string `yaml:"inactivity_timeout"`
}

// Executor configures where agent commands run.
type Executor struct {
	WorkingDir string `yaml:"working_dir"`
}

// Database holds the event journal location.
type Database struct {
	Path string `yaml:"path"`
}

// Logging holds log output configuration.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a
// parsed Config. Environment variables in the format ${VAR_NAME} are
// expanded and duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. An unset variable becomes an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) parseDurations() error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{c.Session.GatewayTimeoutRaw, "gateway_timeout", &c.Session.GatewayTimeout},
		{c.Session.CommandTimeoutRaw, "command_timeout", &c.Session.CommandTimeout},
		{c.Session.InactivityTimeoutRaw, "inactivity_timeout", &c.Session.InactivityTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Session.GatewayTimeout == 0 {
		c.Session.GatewayTimeout = 2 * time.Minute
	}
	if c.Session.CommandTimeout == 0 {
		c.Session.CommandTimeout = 5 * time.Minute
	}
	if c.Session.InactivityTimeout == 0 {
		c.Session.InactivityTimeout = 30 * time.Minute
	}
	if c.Database.Path == "" {
		c.Database.Path = "coxswain.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}
