package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/berthd/berthd/pkg/transports/ssh"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Telemetry.ServiceName != "berthd" {
		t.Errorf("Expected service name berthd, got %s", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.Logging.Level != "info" {
		t.Errorf("Expected info log level, got %s", cfg.Telemetry.Logging.Level)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("Expected buffer size 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Store.Path == "" {
		t.Error("Expected a default store path")
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("Expected no servers, got %d", len(cfg.Servers))
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
telemetry:
  service_name: berthd-test
  environment: staging
  logging:
    level: debug
    format: json
  metrics:
    enabled: true
    listen_address: ":9191"
events:
  buffer_size: 64
store:
  path: /tmp/berth-test.db
policy:
  enabled: true
  paths:
    - /etc/berth/policies
servers:
  - name: web-1
    host: web-1.internal
    user: deploy
    auth_method: key
    key_path: /home/deploy/.ssh/id_ed25519
    connect_timeout: 10s
    labels:
      env: staging
  - name: db-1
    host: 10.0.0.5
    port: 2222
    user: deploy
    auth_method: password
    password: hunter2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry.ServiceName != "berthd-test" {
		t.Errorf("Expected service name berthd-test, got %s", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Telemetry.Logging.Level)
	}
	if cfg.Events.BufferSize != 64 {
		t.Errorf("Expected buffer size 64, got %d", cfg.Events.BufferSize)
	}
	if cfg.Store.Path != "/tmp/berth-test.db" {
		t.Errorf("Expected store path /tmp/berth-test.db, got %s", cfg.Store.Path)
	}
	if !cfg.Policy.Enabled {
		t.Error("Expected policy to be enabled")
	}

	if len(cfg.Servers) != 2 {
		t.Fatalf("Expected 2 servers, got %d", len(cfg.Servers))
	}

	web := cfg.Server("web-1")
	if web == nil {
		t.Fatal("Server web-1 not found")
	}
	if web.Port != 22 {
		t.Errorf("Expected default port 22, got %d", web.Port)
	}
	if time.Duration(web.ConnectTimeout) != 10*time.Second {
		t.Errorf("Expected 10s connect timeout, got %v", time.Duration(web.ConnectTimeout))
	}
	if web.Labels["env"] != "staging" {
		t.Errorf("Expected env=staging label, got %v", web.Labels)
	}

	db := cfg.Server("db-1")
	if db == nil {
		t.Fatal("Server db-1 not found")
	}
	if db.Port != 2222 {
		t.Errorf("Expected port 2222, got %d", db.Port)
	}

	if cfg.Server("missing") != nil {
		t.Error("Expected nil for an unknown server")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "servers: [not: {valid")

	_, err := Load(path)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "bad log level",
			content: `
telemetry:
  logging:
    level: loud
`,
		},
		{
			name: "bad auth method",
			content: `
servers:
  - name: web-1
    host: web-1.internal
    user: deploy
    auth_method: kerberos
`,
		},
		{
			name: "missing host",
			content: `
servers:
  - name: web-1
    user: deploy
`,
		},
		{
			name: "password auth without password",
			content: `
servers:
  - name: web-1
    host: web-1.internal
    user: deploy
    auth_method: password
`,
		},
		{
			name: "duplicate server names",
			content: `
servers:
  - name: web-1
    host: web-1.internal
    user: deploy
  - name: web-1
    host: web-2.internal
    user: deploy
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSSHConfigConversion(t *testing.T) {
	sc := &ServerConfig{
		Name:           "web-1",
		Host:           "web-1.internal",
		Port:           2200,
		User:           "deploy",
		AuthMethod:     "password",
		Password:       "hunter2",
		ConnectTimeout: Duration(10 * time.Second),
		DeployRoot:     "/srv/deployments",
	}

	cfg := sc.SSHConfig()

	if cfg.Host != "web-1.internal" || cfg.Port != 2200 || cfg.User != "deploy" {
		t.Errorf("Unexpected endpoint: %s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	}
	if cfg.AuthMethod != ssh.AuthMethodPassword {
		t.Errorf("Expected password auth, got %s", cfg.AuthMethod)
	}
	if cfg.ConnectionTimeout != 10*time.Second {
		t.Errorf("Expected 10s connection timeout, got %v", cfg.ConnectionTimeout)
	}
	if cfg.DeployRoot != "/srv/deployments" {
		t.Errorf("Expected custom deploy root, got %s", cfg.DeployRoot)
	}
	if cfg.StagingRoot != ssh.DefaultStagingRoot {
		t.Errorf("Expected default staging root, got %s", cfg.StagingRoot)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Converted config should validate: %v", err)
	}
}

func TestTelemetryConfigConversion(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.ServiceName = "berthd-test"
	cfg.Telemetry.Logging.Level = "debug"
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Metrics.ListenAddress = ":9191"

	tc := cfg.TelemetryConfig()

	if tc.ServiceName != "berthd-test" {
		t.Errorf("Expected service name berthd-test, got %s", tc.ServiceName)
	}
	if tc.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", tc.Logging.Level)
	}
	if !tc.Metrics.Enabled || tc.Metrics.ListenAddress != ":9191" {
		t.Errorf("Unexpected metrics config: %+v", tc.Metrics)
	}
	if tc.Metrics.Namespace == "" {
		t.Error("Expected the default metrics namespace to survive conversion")
	}

	if err := tc.Validate(); err != nil {
		t.Errorf("Converted telemetry config should validate: %v", err)
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	initial := `
servers:
  - name: web-1
    host: web-1.internal
    user: deploy
`
	if err := os.WriteFile(path, []byte(initial), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	watcher := NewWatcher(path, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	err := watcher.Watch(ctx, func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	updated := `
servers:
  - name: web-1
    host: web-1.internal
    user: deploy
  - name: web-2
    host: web-2.internal
    user: deploy
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.Servers) != 2 {
			t.Errorf("Expected 2 servers after reload, got %d", len(cfg.Servers))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for config reload")
	}
}
