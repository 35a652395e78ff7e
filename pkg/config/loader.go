package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file location used when none is given.
const DefaultPath = "/etc/berth/config.yaml"

// Default returns a configuration with all defaults applied and no servers.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// applyDefaults fills zero values with defaults.
func (c *Config) applyDefaults() {
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "berthd"
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
	if c.Telemetry.Logging.Level == "" {
		c.Telemetry.Logging.Level = "info"
	}
	if c.Telemetry.Logging.Format == "" {
		c.Telemetry.Logging.Format = "console"
	}
	if c.Telemetry.Logging.Output == "" {
		c.Telemetry.Logging.Output = "stderr"
	}
	if c.Telemetry.Tracing.Exporter == "" {
		c.Telemetry.Tracing.Exporter = "stdout"
	}
	if c.Telemetry.Tracing.SamplingRate == 0 {
		c.Telemetry.Tracing.SamplingRate = 1.0
	}
	if c.Telemetry.Metrics.ListenAddress == "" {
		c.Telemetry.Metrics.ListenAddress = ":9090"
	}

	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = 1024
	}

	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath()
	}

	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Port == 0 {
			s.Port = 22
		}
		if s.AuthMethod == "" {
			s.AuthMethod = "key"
		}
	}
}

// defaultStorePath places the registry under the user's state directory.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "berth.db"
	}
	return filepath.Join(home, ".local", "state", "berth", "berth.db")
}

// Validate checks the configuration against its struct tags plus the
// constraints the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if seen[s.Name] {
			return fmt.Errorf("duplicate server name: %s", s.Name)
		}
		seen[s.Name] = true

		if s.AuthMethod == "password" && s.Password == "" {
			return fmt.Errorf("server %s: password is required for password authentication", s.Name)
		}
	}

	return nil
}

// Watcher watches a configuration file and delivers reloaded configs.
type Watcher struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for a config file path.
func NewWatcher(path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		logger: logger.With().Str("component", "config-watcher").Logger(),
	}
}

// Watch starts watching the config file and invokes reloadFn with every
// successfully reloaded configuration. Invalid intermediate states are
// logged and skipped.
func (w *Watcher) Watch(ctx context.Context, reloadFn func(*Config) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	// Watch the directory so editors that replace the file are observed
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.processEvents(ctx, reloadFn)

	w.logger.Info().Str("path", w.path).Msg("Started watching config file")

	return nil
}

// processEvents debounces file events and triggers reloads.
func (w *Watcher) processEvents(ctx context.Context, reloadFn func(*Config) error) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug().
					Str("op", event.Op.String()).
					Msg("Config file changed")

				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(reloadDelay, func() {
					cfg, err := Load(w.path)
					if err != nil {
						w.logger.Error().Err(err).Msg("Failed to reload config")
						return
					}
					if err := reloadFn(cfg); err != nil {
						w.logger.Error().Err(err).Msg("Failed to apply reloaded config")
					}
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Stop stops watching the config file.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
