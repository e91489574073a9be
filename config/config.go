// Package config holds gateway configuration with defaults, environment
// overrides and YAML file loading.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PlaceholderSelfURL is the documented placeholder value; it is treated the
// same as an unset self URL.
const PlaceholderSelfURL = "https://example.com"

// Config holds the gateway's externally supplied settings.
type Config struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Token              string `yaml:"token"`
	SelfURL            string `yaml:"self_url"`
	AuthTimeoutSeconds int    `yaml:"auth_timeout_seconds"`
	Platform           string `yaml:"platform"`
	SelfID             string `yaml:"self_id"`
	Metrics            bool   `yaml:"metrics"`
}

// Default returns the default gateway configuration.
func Default() *Config {
	return &Config{
		Host:               "127.0.0.1",
		Port:               5140,
		AuthTimeoutSeconds: 10,
		Platform:           "satori",
		SelfID:             "gateway",
	}
}

// FromEnv loads configuration from environment variables on top of defaults.
func FromEnv() *Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides fields from environment variables. Unset variables
// leave the current values in place.
func (c *Config) ApplyEnv() {
	if host := os.Getenv("SATORI_HOST"); host != "" {
		c.Host = host
	}
	if portStr := os.Getenv("SATORI_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Port = port
		}
	}
	if token := os.Getenv("SATORI_TOKEN"); token != "" {
		c.Token = token
	}
	if selfURL := os.Getenv("SATORI_SELF_URL"); selfURL != "" {
		c.SelfURL = selfURL
	}
	if secsStr := os.Getenv("SATORI_AUTH_TIMEOUT"); secsStr != "" {
		if secs, err := strconv.Atoi(secsStr); err == nil {
			c.AuthTimeoutSeconds = secs
		}
	}
	if platform := os.Getenv("SATORI_PLATFORM"); platform != "" {
		c.Platform = platform
	}
	if selfID := os.Getenv("SATORI_SELF_ID"); selfID != "" {
		c.SelfID = selfID
	}
	if metricsStr := os.Getenv("SATORI_METRICS"); metricsStr != "" {
		if enabled, err := strconv.ParseBool(metricsStr); err == nil {
			c.Metrics = enabled
		}
	}
}

// FromFile loads a YAML configuration file on top of defaults.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Normalize fills zero-valued fields from defaults and normalizes the self
// URL: unset or placeholder values fall back to the listen address, and a
// trailing slash is stripped.
func (c *Config) Normalize() {
	def := Default()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.AuthTimeoutSeconds <= 0 {
		c.AuthTimeoutSeconds = def.AuthTimeoutSeconds
	}
	if c.Platform == "" {
		c.Platform = def.Platform
	}
	if c.SelfID == "" {
		c.SelfID = def.SelfID
	}
	if c.SelfURL == "" || c.SelfURL == PlaceholderSelfURL {
		c.SelfURL = "http://" + c.Addr()
	}
	c.SelfURL = strings.TrimSuffix(c.SelfURL, "/")
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AuthTimeout returns the identify deadline as a duration.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.AuthTimeoutSeconds) * time.Second
}
