package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config contains the telemetry configuration for a checkup run.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string `validate:"required"`

	// ServiceVersion is the version of the service.
	ServiceVersion string `validate:"required"`

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig

	// Events contains run event publishing configuration.
	Events EventsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal, disabled).
	Level string `validate:"oneof=trace debug info warn error fatal disabled"`

	// Format specifies the log format (console, json).
	Format string `validate:"oneof=console json"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `validate:"required"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool

	// NoColor disables colored console output.
	NoColor bool

	// TimeFormat specifies the timestamp format (unix, unixms, unixmicro, rfc3339).
	TimeFormat string `validate:"omitempty,oneof=unix unixms unixmicro rfc3339"`

	// Writer overrides Output when set.
	Writer io.Writer `validate:"-"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `validate:"oneof=otlp stdout none"`

	// Endpoint is the OTLP collector endpoint. Defaults to localhost:4317.
	Endpoint string

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `validate:"gte=0,lte=1"`

	// MaxExportBatchSize is the maximum batch size for export.
	MaxExportBatchSize int `validate:"gte=0"`

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration `validate:"gte=0"`

	// Headers are additional headers for OTLP exporter.
	Headers map[string]string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// Writer receives stdout exporter output. Defaults to os.Stderr so
	// report output on stdout stays clean.
	Writer io.Writer `validate:"-"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// ListenAddress is the address for the metrics HTTP endpoint. Empty disables the server.
	ListenAddress string

	// Path is the HTTP path for metrics (default: /metrics).
	Path string

	// Namespace is the metrics namespace prefix.
	Namespace string `validate:"required_if=Enabled true"`

	// DefaultHistogramBuckets are the default latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures the run event publisher.
type EventsConfig struct {
	// Enabled controls whether events are delivered to subscribers.
	Enabled bool
}

var configValidator = validator.New()

// DefaultConfig returns a default telemetry configuration. Tracing and
// metrics are off; the CLI switches them on from flags.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "checkup",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Path:      "/metrics",
			Namespace: "checkup",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		Events: EventsConfig{
			Enabled: true,
		},
	}
}

// DevelopmentConfig returns a configuration with verbose logging and stdout traces.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	cfg.Metrics.Enabled = true
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}
