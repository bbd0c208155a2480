package otel

import (
	"errors"
	"fmt"
)

// Exporter selects where finished spans are sent
type Exporter string

const (
	ExporterJaeger Exporter = "jaeger"
	ExporterZipkin Exporter = "zipkin"
	ExporterStdout Exporter = "stdout"
	ExporterNone   Exporter = "none"
)

// ErrUnsupportedExporter is returned for an unknown Exporter
var ErrUnsupportedExporter = errors.New("unsupported exporter")

// Config configures tracing for the process
type Config struct {
	ServiceName    string
	ServiceVersion string
	Exporter       Exporter
	// Endpoint overrides the collector URL of the jaeger and zipkin exporters
	Endpoint    string
	Environment string
	// SampleRate is the fraction of root spans kept, 0.0 to 1.0
	SampleRate float64
}

// DefaultConfig samples everything and exports nothing
func DefaultConfig() Config {
	return Config{
		ServiceName:    "workpool",
		ServiceVersion: "0.1.0",
		Exporter:       ExporterNone,
		Environment:    "development",
		SampleRate:     1.0,
	}
}

func (c Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate %v is outside [0, 1]", c.SampleRate)
	}
	switch c.Exporter {
	case ExporterJaeger, ExporterZipkin, ExporterStdout, ExporterNone:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedExporter, c.Exporter)
}
