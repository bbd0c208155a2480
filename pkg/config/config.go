package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxorio/workpool/pkg/core"
)

// Config is the full configuration of the workpool server.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Pool    PoolConfig    `yaml:"pool" json:"pool"`
	Admin   AdminConfig   `yaml:"admin" json:"admin"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the connection listener.
type ServerConfig struct {
	Addr         string   `yaml:"addr" json:"addr"`
	DocRoot      string   `yaml:"doc_root" json:"doc_root"`
	ReadTimeout  Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout" json:"write_timeout"`
	SleepDelay   Duration `yaml:"sleep_delay" json:"sleep_delay"`
}

// PoolConfig configures the worker pool. QueueCapacity 0 means unbounded.
type PoolConfig struct {
	Size            int      `yaml:"size" json:"size"`
	QueueCapacity   int      `yaml:"queue_capacity" json:"queue_capacity"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// AdminConfig configures the metrics and health endpoint.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	ServiceName string  `yaml:"service_name" json:"service_name"`
	Exporter    string  `yaml:"exporter" json:"exporter"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Environment string  `yaml:"environment" json:"environment"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:7878",
			DocRoot:      ".",
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
			SleepDelay:   Duration(5 * time.Second),
		},
		Pool: PoolConfig{
			Size:            4,
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level: "INFO",
		},
		Tracing: TracingConfig{
			ServiceName: "workpool",
			Exporter:    "none",
			Environment: "development",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if err := core.ValidateAddress(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if c.Server.DocRoot == "" {
		return fmt.Errorf("server.doc_root cannot be empty")
	}
	if err := core.ValidateTimeout(c.Server.ReadTimeout.Std()); err != nil {
		return fmt.Errorf("server.read_timeout: %w", err)
	}
	if err := core.ValidateTimeout(c.Server.WriteTimeout.Std()); err != nil {
		return fmt.Errorf("server.write_timeout: %w", err)
	}
	if c.Server.SleepDelay < 0 {
		return fmt.Errorf("server.sleep_delay cannot be negative")
	}
	if err := core.ValidatePoolSize(c.Pool.Size); err != nil {
		return fmt.Errorf("pool.size: %w", err)
	}
	if c.Pool.QueueCapacity < 0 {
		return fmt.Errorf("pool.queue_capacity cannot be negative")
	}
	if c.Pool.ShutdownTimeout <= 0 {
		return fmt.Errorf("pool.shutdown_timeout must be positive")
	}
	if c.Admin.Enabled {
		if err := core.ValidateAddress(c.Admin.Addr); err != nil {
			return fmt.Errorf("admin.addr: %w", err)
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0")
	}
	return nil
}

// Duration is a time.Duration written as a string ("5s") in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
