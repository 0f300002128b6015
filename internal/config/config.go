// Package config holds the YAML client configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL  string `yaml:"server_url"`
	ClientName string `yaml:"client_name"`

	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`
	CallTimeoutMS    int `yaml:"call_timeout_ms"`
	TickTimeoutMS    int `yaml:"tick_timeout_ms"`

	// Episode settings applied after connect when Synchronous is set.
	Synchronous       bool    `yaml:"synchronous"`
	FixedDeltaSeconds float64 `yaml:"fixed_delta_seconds"`
	NoRendering       bool    `yaml:"no_rendering"`

	Recording RecordingConfig `yaml:"recording"`
}

type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Load reads the config file, or returns defaults when path is empty.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("client.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("client.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ServerURL:        "ws://localhost:8080/v1/ws",
		ClientName:       "roadsim",
		ConnectTimeoutMS: 10000,
		CallTimeoutMS:    10000,
		TickTimeoutMS:    10000,
		Recording: RecordingConfig{
			Dir: "recordings",
		},
	}
}

// Normalize fills derived and missing fields.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.ClientName) == "" {
		c.ClientName = "roadsim"
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = 10000
	}
	if c.CallTimeoutMS <= 0 {
		c.CallTimeoutMS = 10000
	}
	if c.TickTimeoutMS <= 0 {
		c.TickTimeoutMS = 10000
	}
	if c.Recording.Enabled && strings.TrimSpace(c.Recording.Dir) == "" {
		c.Recording.Dir = "recordings"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server_url is required")
	}
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return fmt.Errorf("server_url must be a ws:// or wss:// url, got %q", c.ServerURL)
	}
	if c.FixedDeltaSeconds < 0 {
		return fmt.Errorf("fixed_delta_seconds must not be negative")
	}
	if c.Synchronous && c.FixedDeltaSeconds == 0 {
		return fmt.Errorf("synchronous mode requires fixed_delta_seconds")
	}
	return nil
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

func (c *Config) TickTimeout() time.Duration {
	return time.Duration(c.TickTimeoutMS) * time.Millisecond
}
