package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for a build invocation.
type Config struct {
	// ServiceName identifies the process in traces and metrics.
	ServiceName string `yaml:"service_name" toml:"service_name"`

	ServiceVersion string `yaml:"service_version" toml:"service_version"`

	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Events  EventsConfig  `yaml:"events" toml:"events"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `yaml:"level" toml:"level"`

	// Format is either console or json.
	Format string `yaml:"format" toml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output" toml:"output"`

	EnableCaller bool `yaml:"caller" toml:"caller"`

	// TimeFormat is unix, unixms or rfc3339.
	TimeFormat string `yaml:"time_format" toml:"time_format"`
}

// TracingConfig configures OpenTelemetry spans for runs and tasks.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Exporter is otlp, stdout or none.
	Exporter string `yaml:"exporter" toml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	SamplingRate  float64       `yaml:"sampling_rate" toml:"sampling_rate"`
	ExportTimeout time.Duration `yaml:"export_timeout" toml:"export_timeout"`
	Insecure      bool          `yaml:"insecure" toml:"insecure"`
}

// MetricsConfig configures Prometheus collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// ListenAddress for the /metrics endpoint. Empty means collect without serving.
	ListenAddress string `yaml:"listen_address" toml:"listen_address"`

	Path      string `yaml:"path" toml:"path"`
	Namespace string `yaml:"namespace" toml:"namespace"`

	// Buckets are the task and run latency buckets in seconds.
	Buckets []float64 `yaml:"buckets" toml:"buckets"`
}

// EventsConfig configures the build event publisher.
type EventsConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	BufferSize int  `yaml:"buffer_size" toml:"buffer_size"`

	// Async delivers events from a background goroutine instead of the caller.
	Async bool `yaml:"async" toml:"async"`
}

// DefaultConfig returns the configuration used when no settings file overrides it.
// Metrics and tracing are off so a plain build has no network side effects.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "assemble",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Path:      "/metrics",
			Namespace: "assemble",
			Buckets: []float64{
				0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
			},
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
			Async:      false,
		},
	}
}

// DebugConfig is DefaultConfig with debug logging and stdout tracing.
func DebugConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if _, ok := logLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	switch c.Tracing.Exporter {
	case "otlp", "stdout", "none":
	default:
		if c.Tracing.Enabled {
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
	}

	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Events.Enabled && c.Events.Async && c.Events.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got: %d", c.Events.BufferSize)
	}

	return nil
}
