package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the pcbench configuration file.
type Config struct {
	BlockSize     int          `yaml:"block_size"`
	MaxPages      int          `yaml:"max_pages"`
	MemoryLimit   string       `yaml:"memory_limit"`
	WriteBackRate string       `yaml:"write_back_rate"`
	LogLevel      string       `yaml:"log_level"`
	MetricsAddr   string       `yaml:"metrics_addr"`
	Device        DeviceConfig `yaml:"device"`
}

// DeviceConfig selects and configures the block device.
type DeviceConfig struct {
	Kind     string `yaml:"kind"` // local, memory, s3, minio
	DirectIO *bool  `yaml:"direct_io"`

	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Codec  string `yaml:"codec"`

	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	ExtentTable string `yaml:"extent_table"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

func defaultConfig() Config {
	return Config{
		BlockSize: 4096,
		MaxPages:  8192,
		LogLevel:  "warn",
		Device:    DeviceConfig{Kind: "local"},
	}
}

// LoadConfig reads a YAML config. Unset fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive, got %d", c.MaxPages)
	}
	if _, err := c.memoryLimit(); err != nil {
		return err
	}
	if _, err := c.writeBackRate(); err != nil {
		return err
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}

	switch c.Device.Kind {
	case "local", "memory":
	case "s3", "minio":
		if c.Device.Bucket == "" {
			return fmt.Errorf("device %s needs a bucket", c.Device.Kind)
		}
		if c.Device.Kind == "minio" && c.Device.Endpoint == "" {
			return fmt.Errorf("device minio needs an endpoint")
		}
	default:
		return fmt.Errorf("unknown device kind %q", c.Device.Kind)
	}
	return nil
}

func (c Config) memoryLimit() (int64, error) {
	return parseBytes("memory_limit", c.MemoryLimit)
}

func (c Config) writeBackRate() (int64, error) {
	return parseBytes("write_back_rate", c.WriteBackRate)
}

func (c Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func (c Config) directIO() bool {
	return c.Device.DirectIO == nil || *c.Device.DirectIO
}

func parseBytes(field, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return int64(n), nil
}
