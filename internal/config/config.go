// Package config loads and validates the swarmgate YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "10s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full swarmgate configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Backends []BackendConfig `yaml:"backends"`
	Routing  RoutingConfig   `yaml:"routing"`
	Probe    ProbeConfig     `yaml:"probe"`
	Executor ExecutorConfig  `yaml:"executor"`
	History  HistoryConfig   `yaml:"history"`
	Events   EventsConfig    `yaml:"events"`
	Digest   DigestConfig    `yaml:"digest"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BackendConfig describes one inference backend.
type BackendConfig struct {
	Name           string   `yaml:"name"`
	BaseURL        string   `yaml:"base_url"`
	Model          string   `yaml:"model"`
	TaskTypes      []string `yaml:"task_types"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// RoutingConfig maps task types to ordered backend preference lists.
type RoutingConfig struct {
	Tasks   map[string][]string `yaml:"tasks"`
	Default []string            `yaml:"default"`
}

// ProbeConfig holds health probe settings.
type ProbeConfig struct {
	Interval         Duration `yaml:"interval"`
	Timeout          Duration `yaml:"timeout"`
	FailureThreshold int      `yaml:"failure_threshold"`
}

// ExecutorConfig holds completion request settings.
type ExecutorConfig struct {
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxAttempts    int      `yaml:"max_attempts"`
	Temperature    float64  `yaml:"temperature"`
}

// HistoryConfig bounds the outcome history window.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// EventsConfig holds the optional Redis Streams telemetry settings.
type EventsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Stream    string `yaml:"stream"`
}

// DigestConfig holds the optional cron status digest settings.
type DigestConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 18810
	}
	if c.Probe.Interval == 0 {
		c.Probe.Interval = Duration(10 * time.Second)
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(2 * time.Second)
	}
	if c.Probe.FailureThreshold == 0 {
		c.Probe.FailureThreshold = 1
	}
	if c.Executor.RequestTimeout == 0 {
		c.Executor.RequestTimeout = Duration(120 * time.Second)
	}
	if c.Executor.MaxAttempts == 0 {
		c.Executor.MaxAttempts = 3
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = 100
	}
	if c.Events.Stream == "" {
		c.Events.Stream = "swarmgate:events"
	}
	if c.Digest.Schedule == "" {
		c.Digest.Schedule = "0 * * * *"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	for i := range c.Backends {
		if c.Backends[i].Model == "" {
			c.Backends[i].Model = "default"
		}
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("no backends configured")
	}
	seen := make(map[string]bool)
	for _, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend with empty name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name: %s", b.Name)
		}
		seen[b.Name] = true
		if b.BaseURL == "" {
			return fmt.Errorf("backend %s: base_url is required", b.Name)
		}
		if len(b.TaskTypes) == 0 {
			return fmt.Errorf("backend %s: at least one task type is required", b.Name)
		}
	}
	for taskType, names := range c.Routing.Tasks {
		if len(names) == 0 {
			return fmt.Errorf("routing: empty preference list for task type %s", taskType)
		}
		for _, name := range names {
			if !seen[name] {
				return fmt.Errorf("routing: unknown backend %s for task type %s", name, taskType)
			}
		}
	}
	if len(c.Routing.Default) == 0 {
		return fmt.Errorf("routing: default preference list is required")
	}
	for _, name := range c.Routing.Default {
		if !seen[name] {
			return fmt.Errorf("routing: unknown backend %s in default list", name)
		}
	}
	if c.Probe.Timeout.Std() >= c.Probe.Interval.Std() {
		return fmt.Errorf("probe timeout %s must be shorter than interval %s",
			c.Probe.Timeout.Std(), c.Probe.Interval.Std())
	}
	if c.Probe.FailureThreshold < 1 {
		return fmt.Errorf("probe failure_threshold must be at least 1")
	}
	if c.Executor.MaxAttempts < 1 {
		return fmt.Errorf("executor max_attempts must be at least 1")
	}
	if c.Events.Enabled && c.Events.RedisAddr == "" {
		return fmt.Errorf("events: redis_addr is required when enabled")
	}
	return nil
}
