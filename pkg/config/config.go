package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/notify"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/watch"
	"gopkg.in/yaml.v3"
)

// Config is the burrow configuration file
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Broker  BrokerConfig  `yaml:"broker"`
	Arena   ArenaConfig   `yaml:"arena"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
	Watches []WatchSpec   `yaml:"watches,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type BrokerConfig struct {
	QueueSize       int           `yaml:"queue_size"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	// PID overrides the broker identity; 0 uses the process id.
	PID uint32 `yaml:"pid"`
}

type ArenaConfig struct {
	// MaxBytes caps shared payload storage; 0 means unlimited.
	MaxBytes int `yaml:"max_bytes"`
}

type WatchConfig struct {
	MaxWatchers  int  `yaml:"max_watchers"`
	IgnoreHidden bool `yaml:"ignore_hidden"`
}

type MetricsConfig struct {
	// Addr is the listen address of the metrics and health endpoint.
	// Empty disables it.
	Addr string `yaml:"addr"`
}

// WatchSpec is one directory that serve subscribes to at startup.
type WatchSpec struct {
	Path      string   `yaml:"path"`
	Recursive bool     `yaml:"recursive"`
	Events    []string `yaml:"events,omitempty"`
}

// Mask returns the configured event mask; no names means every event.
func (w WatchSpec) Mask() (types.EventMask, error) {
	if len(w.Events) == 0 {
		return types.EventAll, nil
	}
	return types.ParseEventMask(w.Events)
}

// Default returns the built-in configuration.
func Default() *Config {
	bc := notify.DefaultConfig()
	return &Config{
		Log: LogConfig{Level: string(log.InfoLevel)},
		Broker: BrokerConfig{
			QueueSize:       bc.QueueSize,
			DeliveryTimeout: bc.DeliveryTimeout,
		},
		Watch: WatchConfig{
			MaxWatchers:  bc.Watch.MaxWatchers,
			IgnoreHidden: bc.Watch.IgnoreHidden,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the broker cannot run with.
func (c *Config) Validate() error {
	switch log.Level(c.Log.Level) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Broker.QueueSize < 0 {
		return fmt.Errorf("broker.queue_size must not be negative")
	}
	if c.Broker.DeliveryTimeout < 0 {
		return fmt.Errorf("broker.delivery_timeout must not be negative")
	}
	if c.Arena.MaxBytes < 0 {
		return fmt.Errorf("arena.max_bytes must not be negative")
	}
	if c.Watch.MaxWatchers < 0 {
		return fmt.Errorf("watch.max_watchers must not be negative")
	}
	for i, w := range c.Watches {
		if w.Path == "" {
			return fmt.Errorf("watches[%d]: path is required", i)
		}
		if !filepath.IsAbs(w.Path) {
			return fmt.Errorf("watches[%d]: path must be absolute: %s", i, w.Path)
		}
		if _, err := w.Mask(); err != nil {
			return fmt.Errorf("watches[%d]: %w", i, err)
		}
	}
	return nil
}

// LogSettings returns the logger settings.
func (c *Config) LogSettings() log.Config {
	return log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}

// BrokerSettings returns the notify server settings.
func (c *Config) BrokerSettings() notify.Config {
	return notify.Config{
		PID:             types.PID(c.Broker.PID),
		QueueSize:       c.Broker.QueueSize,
		DeliveryTimeout: c.Broker.DeliveryTimeout,
		Watch: watch.Config{
			MaxWatchers:  c.Watch.MaxWatchers,
			IgnoreHidden: c.Watch.IgnoreHidden,
		},
	}
}
