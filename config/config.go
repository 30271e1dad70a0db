// Package config provides YAML configuration parsing for dispatchboard.
//
// This package enables running the board as a standalone binary with a
// configuration file, as an alternative to wiring the stores in code.
//
// Example configuration:
//
//	title: Night Shift
//	port: 8080
//	api_url: ${DISPATCH_API:-http://localhost:3001}
//	timeout: 10s
//	refresh_interval: 30s
//	headers:
//	  Authorization: Bearer ${DISPATCH_TOKEN}
//
//	load:
//	  delay: 500ms
//	persist:
//	  simulate_error: true
//
//	mock:
//	  port: 3001
//	  latency: 100ms
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/dispatchboard"
)

const (
	defaultPort     = 8080
	defaultMockPort = 3001
	defaultTimeout  = 10 * time.Second

	// minRefreshInterval keeps a misconfigured board from hammering the API.
	minRefreshInterval = 1 * time.Second
	maxRefreshInterval = 1 * time.Hour
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the board title. The server falls back to its own default.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// APIURL is the base URL of the remote dispatch API.
	// Empty means an in-process source seeded with the fixture data.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	APIURL string `yaml:"api_url"`

	// Timeout bounds each remote request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with every remote request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// RefreshInterval reloads every collection periodically.
	// Zero disables refreshing. Must be between 1s and 1h when set.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// Load applies to every collection load.
	Load CallConfig `yaml:"load"`

	// Persist applies to every mutation write.
	Persist CallConfig `yaml:"persist"`

	// Mock configures the mock API and the in-process source.
	Mock MockConfig `yaml:"mock"`
}

// CallConfig mirrors [dispatchboard.LoadOptions] for YAML.
type CallConfig struct {
	// Delay asks the API to wait before answering.
	Delay Duration `yaml:"delay"`

	// SimulateError asks the API to fail the call.
	SimulateError bool `yaml:"simulate_error"`
}

// Options converts c into store load options.
func (c CallConfig) Options() dispatchboard.LoadOptions {
	return dispatchboard.LoadOptions{
		Delay:         c.Delay.Duration(),
		SimulateError: c.SimulateError,
	}
}

// MockConfig configures the mock API.
type MockConfig struct {
	// Port is the mock API port. Defaults to 3001.
	Port int `yaml:"port"`

	// Latency is added to every call before any requested delay.
	Latency Duration `yaml:"latency"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in APIURL and Header values.
// Defaults are applied for Port (8080), Timeout (10s) and Mock.Port (3001).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(defaultTimeout)
	}
	if c.Mock.Port == 0 {
		c.Mock.Port = defaultMockPort
	}
}

// Validate expands environment variables and checks every field.
// Use it after overriding fields of a parsed Config.
func (c *Config) Validate() error {
	return c.expandAndValidate()
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Mock.Port < 1 || c.Mock.Port > 65535 {
		return fmt.Errorf("mock.port must be between 1 and 65535, got %d", c.Mock.Port)
	}

	if c.APIURL != "" {
		expanded, err := expandEnvVars(c.APIURL)
		if err != nil {
			return fmt.Errorf("api_url: %w", err)
		}
		c.APIURL = expanded

		parsedURL, err := url.Parse(c.APIURL)
		if err != nil {
			return fmt.Errorf("invalid api_url: %w", err)
		}
		if parsedURL.Scheme == "" {
			return fmt.Errorf("api_url must have a scheme (http:// or https://)")
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("api_url scheme must be http or https, got %q", parsedURL.Scheme)
		}
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	if c.Timeout.Duration() < time.Second {
		return fmt.Errorf("timeout must be at least 1s, got %s", c.Timeout.Duration())
	}

	if c.RefreshInterval != 0 {
		if c.RefreshInterval.Duration() < minRefreshInterval {
			return fmt.Errorf("refresh_interval must be at least %s, got %s",
				minRefreshInterval, c.RefreshInterval.Duration())
		}
		if c.RefreshInterval.Duration() > maxRefreshInterval {
			return fmt.Errorf("refresh_interval must not exceed %s, got %s",
				maxRefreshInterval, c.RefreshInterval.Duration())
		}
	}

	calls := []struct {
		name string
		cfg  CallConfig
	}{
		{"load", c.Load},
		{"persist", c.Persist},
	}
	for _, call := range calls {
		if call.cfg.Delay.Duration() < 0 {
			return fmt.Errorf("%s.delay cannot be negative, got %s", call.name, call.cfg.Delay.Duration())
		}
		if c.APIURL != "" && call.cfg.Delay.Duration() >= c.Timeout.Duration() {
			return fmt.Errorf("%s.delay (%s) must be shorter than timeout (%s)",
				call.name, call.cfg.Delay.Duration(), c.Timeout.Duration())
		}
	}

	if c.Mock.Latency.Duration() < 0 {
		return fmt.Errorf("mock.latency cannot be negative, got %s", c.Mock.Latency.Duration())
	}

	return nil
}
