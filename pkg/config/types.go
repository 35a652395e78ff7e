package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/berthd/berthd/pkg/telemetry"
	"github.com/berthd/berthd/pkg/transports/ssh"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level berthd configuration loaded from YAML.
type Config struct {
	// Telemetry configures logging, tracing, and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Events configures the notification bus.
	Events EventsConfig `yaml:"events"`

	// Store configures the server registry database.
	Store StoreConfig `yaml:"store"`

	// Policy configures deploy admission policies.
	Policy PolicyConfig `yaml:"policy"`

	// Servers are the statically configured servers. Servers added here are
	// reconciled into the registry on load; removal requires the CLI.
	Servers []ServerConfig `yaml:"servers" validate:"dive"`
}

// TelemetryConfig configures the observability stack.
type TelemetryConfig struct {
	// ServiceName identifies the service in telemetry output.
	ServiceName string `yaml:"service_name"`

	// Environment is the deployment environment (development, staging, production).
	Environment string `yaml:"environment" validate:"omitempty,oneof=development staging production"`

	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level.
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// Format is the log output format.
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`

	// Output is where logs are written (stdout, stderr, or a file path).
	Output string `yaml:"output"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter selects the trace exporter.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `yaml:"endpoint"`

	// SamplingRate is the trace sampling rate between 0 and 1.
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the metrics HTTP listen address.
	ListenAddress string `yaml:"listen_address" validate:"required_if=Enabled true"`
}

// EventsConfig configures the notification bus.
type EventsConfig struct {
	// BufferSize is the event queue capacity.
	BufferSize int `yaml:"buffer_size" validate:"omitempty,gt=0"`
}

// StoreConfig configures the SQLite server registry.
type StoreConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`
}

// PolicyConfig configures deploy admission policies.
type PolicyConfig struct {
	// Enabled toggles policy evaluation before deploys.
	Enabled bool `yaml:"enabled"`

	// Paths are .rego files or directories loaded in addition to the built-ins.
	Paths []string `yaml:"paths"`

	// Watch reloads policies when the files change.
	Watch bool `yaml:"watch"`
}

// ServerConfig describes one target server.
type ServerConfig struct {
	// Name is the unique registry name for this server.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// Host is the SSH hostname or IP address.
	Host string `yaml:"host" validate:"required"`

	// Port is the SSH port.
	Port int `yaml:"port" validate:"omitempty,gt=0,lte=65535"`

	// User is the SSH username.
	User string `yaml:"user" validate:"required"`

	// AuthMethod selects the SSH authentication method.
	AuthMethod string `yaml:"auth_method" validate:"omitempty,oneof=password key"`

	// Password for password authentication.
	Password string `yaml:"password"`

	// KeyPath is the private key file for key authentication.
	KeyPath string `yaml:"key_path"`

	// KnownHostsPath is the known_hosts file used for host key verification.
	KnownHostsPath string `yaml:"known_hosts_path"`

	// StrictHostKeyChecking rejects unknown host keys.
	StrictHostKeyChecking bool `yaml:"strict_host_key_checking"`

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// CommandTimeout bounds remote operations.
	CommandTimeout Duration `yaml:"command_timeout"`

	// DeployRoot is the remote directory holding live deployments.
	DeployRoot string `yaml:"deploy_root"`

	// StagingRoot is the remote directory artifacts are staged in.
	StagingRoot string `yaml:"staging_root"`

	// Labels are registry labels attached to the server.
	Labels map[string]string `yaml:"labels"`
}

// SSHConfig converts a ServerConfig into a transport configuration.
func (s *ServerConfig) SSHConfig() *ssh.Config {
	cfg := ssh.DefaultConfig(s.Host, s.User)

	if s.Port != 0 {
		cfg.Port = s.Port
	}
	if s.AuthMethod != "" {
		cfg.AuthMethod = ssh.AuthMethod(s.AuthMethod)
	}
	cfg.Password = s.Password
	if s.KeyPath != "" {
		cfg.PrivateKeyPath = s.KeyPath
	}
	if s.KnownHostsPath != "" {
		cfg.KnownHostsPath = s.KnownHostsPath
	}
	cfg.StrictHostKeyChecking = s.StrictHostKeyChecking
	if s.ConnectTimeout != 0 {
		cfg.ConnectionTimeout = time.Duration(s.ConnectTimeout)
	}
	if s.CommandTimeout != 0 {
		cfg.CommandTimeout = time.Duration(s.CommandTimeout)
	}
	if s.DeployRoot != "" {
		cfg.DeployRoot = s.DeployRoot
	}
	if s.StagingRoot != "" {
		cfg.StagingRoot = s.StagingRoot
	}

	return cfg
}

// TelemetryConfig converts the loaded telemetry section into the telemetry
// package's configuration, starting from its defaults.
func (c *Config) TelemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()

	if c.Telemetry.ServiceName != "" {
		cfg.ServiceName = c.Telemetry.ServiceName
	}
	if c.Telemetry.Environment != "" {
		cfg.Environment = c.Telemetry.Environment
	}
	if c.Telemetry.Logging.Level != "" {
		cfg.Logging.Level = c.Telemetry.Logging.Level
	}
	if c.Telemetry.Logging.Format != "" {
		cfg.Logging.Format = c.Telemetry.Logging.Format
	}
	if c.Telemetry.Logging.Output != "" {
		cfg.Logging.Output = c.Telemetry.Logging.Output
	}

	cfg.Tracing.Enabled = c.Telemetry.Tracing.Enabled
	if c.Telemetry.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = c.Telemetry.Tracing.Exporter
	}
	if c.Telemetry.Tracing.Endpoint != "" {
		cfg.Tracing.Endpoint = c.Telemetry.Tracing.Endpoint
	}
	if c.Telemetry.Tracing.SamplingRate != 0 {
		cfg.Tracing.SamplingRate = c.Telemetry.Tracing.SamplingRate
	}

	cfg.Metrics.Enabled = c.Telemetry.Metrics.Enabled
	if c.Telemetry.Metrics.ListenAddress != "" {
		cfg.Metrics.ListenAddress = c.Telemetry.Metrics.ListenAddress
	}

	return cfg
}

// Server returns the server configuration with the given name, or nil.
func (c *Config) Server(name string) *ServerConfig {
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			return &c.Servers[i]
		}
	}
	return nil
}
