package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/berthd/berthd/pkg/config"
	"github.com/berthd/berthd/pkg/events"
	"github.com/berthd/berthd/pkg/policy"
	"github.com/berthd/berthd/pkg/runtime"
	"github.com/berthd/berthd/pkg/stores"
	"github.com/berthd/berthd/pkg/telemetry"
	"github.com/berthd/berthd/pkg/transports/ssh"
)

// app wires the config, telemetry, store, bus, policy engine, and the
// connection manager together for one CLI invocation.
type app struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	bus     *events.Bus
	store   stores.Store
	engine  *policy.Engine
	manager *runtime.Manager
}

// newApp bootstraps the application from the config file.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	bus := events.NewBus(events.Config{BufferSize: cfg.Events.BufferSize})
	bus.Subscribe(func(e events.Event) {
		tel.Metrics.RecordEventPublished(string(e.Kind))
	}, nil)

	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = bus.Close(ctx)
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		tel:   tel,
		bus:   bus,
		store: store,
	}

	if err := a.reconcileConfigServers(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	var opts []runtime.ManagerOption
	if cfg.Policy.Enabled {
		engine, err := policy.NewEngine(tel.Logger.Zerolog())
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
		}
		engine.SetEnvironment(cfg.Telemetry.Environment)
		if len(cfg.Policy.Paths) > 0 {
			if err := engine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
				a.close(ctx)
				return nil, err
			}
		}
		a.engine = engine
		opts = append(opts, runtime.WithAdmissionPolicy(engine))
	}

	a.manager = runtime.NewManager(bus, tel.Logger.Zerolog(), opts...)

	if cfg.Telemetry.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			tel.Logger.WithError(err).Warn("Failed to start metrics server")
		}
	}

	return a, nil
}

// resolvedConfigPath returns the config file in use: the --config flag, the
// default path when it exists, or empty when running on built-in defaults.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	if path := resolvedConfigPath(); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func openStore(ctx context.Context, cfg *config.Config) (stores.Store, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// reconcileConfigServers adds servers from the config file to the registry.
// Reconciliation is add-only; removal goes through `berth server remove`.
func (a *app) reconcileConfigServers(ctx context.Context) error {
	for i := range a.cfg.Servers {
		sc := &a.cfg.Servers[i]
		if _, err := a.store.GetServer(ctx, sc.Name); err == nil {
			continue
		}

		labels, err := json.Marshal(sc.Labels)
		if err != nil {
			return err
		}
		now := time.Now()
		server := &stores.Server{
			ID:         uuid.New().String(),
			Name:       sc.Name,
			Address:    sc.Host,
			Port:       sc.Port,
			User:       sc.User,
			AuthMethod: sc.AuthMethod,
			KeyPath:    sc.KeyPath,
			Labels:     string(labels),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := a.store.CreateServer(ctx, server); err != nil {
			return fmt.Errorf("failed to register server %s: %w", sc.Name, err)
		}
		a.tel.Logger.WithServer(sc.Name).Info("Registered server from config")
	}
	return nil
}

// applyConfigReload takes over a freshly loaded configuration and registers
// any servers added to it. Reconciliation stays add-only across reloads.
func (a *app) applyConfigReload(ctx context.Context, cfg *config.Config) error {
	a.cfg = cfg
	return a.reconcileConfigServers(ctx)
}

func (a *app) close(ctx context.Context) {
	if a.bus != nil {
		_ = a.bus.Close(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
}

// connection resolves a server by name and returns its managed connection.
// Config-file entries win over registry records because only they can carry
// a password.
func (a *app) connection(ctx context.Context, name string) (*runtime.Connection, error) {
	sshCfg, rtServer, err := a.resolveServer(ctx, name)
	if err != nil {
		return nil, err
	}

	connector, err := ssh.NewConnector(sshCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid transport config for server %s: %w", name, err)
	}

	return a.manager.GetOrCreateConnection(rtServer, connector), nil
}

func (a *app) resolveServer(ctx context.Context, name string) (*ssh.Config, *runtime.Server, error) {
	if sc := a.cfg.Server(name); sc != nil {
		sshCfg := sc.SSHConfig()
		return sshCfg, &runtime.Server{
			Name:    sc.Name,
			Address: sshCfg.Address(),
			Labels:  sc.Labels,
		}, nil
	}

	rec, err := a.store.GetServer(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("unknown server %s: %w", name, err)
	}

	sshCfg := ssh.DefaultConfig(rec.Address, rec.User)
	if rec.Port != 0 {
		sshCfg.Port = rec.Port
	}
	if rec.AuthMethod != "" {
		sshCfg.AuthMethod = ssh.AuthMethod(rec.AuthMethod)
	}
	if rec.KeyPath != "" {
		sshCfg.PrivateKeyPath = rec.KeyPath
	}

	labels := map[string]string{}
	if rec.Labels != "" {
		if err := json.Unmarshal([]byte(rec.Labels), &labels); err != nil {
			return nil, nil, fmt.Errorf("corrupt labels for server %s: %w", name, err)
		}
	}

	return sshCfg, &runtime.Server{
		Name:    rec.Name,
		Address: sshCfg.Address(),
		Labels:  labels,
	}, nil
}

// startOperation opens a traced span for one CLI operation. The returned
// context carries the span; End records the outcome and closes it.
func (a *app) startOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *telemetry.InstrumentedContext {
	return telemetry.StartOperation(a.tel.WithContext(ctx), operation, attrs...)
}

// subscribeChanges registers a bus subscriber that pings the channel on any
// event for the named connection. The ping is lossy; waiters re-check state.
func subscribeChanges(a *app, connection string, ch chan<- struct{}) string {
	return a.bus.Subscribe(func(events.Event) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}, events.FilterByConnection(connection))
}

// recordOperation appends to the audit log. Logged on failure, never fatal.
func (a *app) recordOperation(ctx context.Context, server string, kind stores.OperationKind, deployment, outcome, message string) {
	entry := &stores.OperationEntry{
		Server:    server,
		Kind:      kind,
		Outcome:   outcome,
		Timestamp: time.Now(),
	}
	if deployment != "" {
		entry.Deployment = &deployment
	}
	if message != "" {
		entry.Message = &message
	}
	if err := a.store.AppendOperation(ctx, entry); err != nil {
		a.tel.Logger.WithError(err).Warn("Failed to record operation")
	}
}
