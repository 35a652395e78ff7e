package runtime

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/berthd/berthd/pkg/logs"
)

// Connection pairs one server registration with its session state and
// deployment registry. All operations are asynchronous: network-bound steps
// settle by invoking a supplied continuation, possibly from a connector or
// runtime goroutine, and no operation blocks the caller. Failures are never
// returned as errors to the caller; they become observable state (connection
// status text or deployment records) and the continuation still fires.
type Connection struct {
	server    *Server
	connector Connector
	manager   *Manager
	notifier  Notifier
	logger    zerolog.Logger

	// mu guards status, statusText and instance. Each transition is one
	// atomic read-modify-write; the ensureConnected decision deliberately
	// reads the handle at a single instant without holding mu across the
	// handshake, so concurrent callers may both dial (see package doc).
	mu         sync.RWMutex
	status     ConnectionStatus
	statusText string
	instance   ServerRuntime

	registry *deploymentRegistry
}

func newConnection(server *Server, connector Connector, manager *Manager, notifier Notifier, logger zerolog.Logger) *Connection {
	return &Connection{
		server:    server,
		connector: connector,
		manager:   manager,
		notifier:  notifier,
		logger:    logger.With().Str("server", server.Name).Logger(),
		status:    StatusDisconnected,
		registry:  newDeploymentRegistry(),
	}
}

// Server returns the registration this connection belongs to.
func (c *Connection) Server() *Server {
	return c.server
}

// Status returns the current connection status.
func (c *Connection) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// StatusText returns the status text override when present, otherwise the
// status's default presentable text. The override typically carries the last
// error message.
func (c *Connection) StatusText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.statusText != "" {
		return c.statusText
	}
	return c.status.PresentableText()
}

// Connect tears down any existing session first, then attempts to establish a
// new one. onFinished is invoked exactly once whether the attempt succeeds or
// fails; the outcome is observable only via Status and StatusText.
func (c *Connection) Connect(onFinished func()) {
	c.doDisconnect()
	c.ensureConnected(ConnectionCallbackFuncs{
		OnConnected: func(ServerRuntime) { onFinished() },
		OnFailed:    func(string) { onFinished() },
	})
}

// Disconnect unregisters this connection from the manager and tears down the
// live session if one exists.
func (c *Connection) Disconnect() {
	if c.manager != nil {
		c.manager.RemoveConnection(c.server.Name)
	}
	c.doDisconnect()
}

func (c *Connection) doDisconnect() {
	c.mu.Lock()
	instance := c.instance
	connected := c.status == StatusConnected
	if connected {
		c.instance = nil
		c.status = StatusDisconnected
		c.statusText = ""
	}
	c.mu.Unlock()

	if !connected {
		return
	}
	if instance != nil {
		instance.Disconnect()
	}
	c.logger.Info().Msg("disconnected")
	c.notifier.QueueConnectionStatusChanged(c.server.Name)
}

// Deploy ensures a live connection, records the deployment as started,
// invokes onStarted with the derived name, and dispatches the runtime deploy.
// If the connection attempt fails, onStarted never fires and no deployment
// record is created; the failure is visible via the connection status. If the
// manager's admission policy denies the deploy, a not-deployed record with
// the policy message is created instead of dispatching.
func (c *Connection) Deploy(task *DeploymentTask, onStarted func(name string)) {
	c.ensureConnected(ConnectionCallbackFuncs{
		OnConnected: func(instance ServerRuntime) {
			name := instance.DeploymentName(task.Source)

			if c.manager != nil && c.manager.admission != nil {
				if err := c.manager.admission.AdmitDeploy(c.server, task.Source); err != nil {
					c.logger.Warn().Str("deployment", name).Err(err).Msg("deploy denied by policy")
					c.registry.recordDeployFailed(name, err.Error())
					c.notifier.QueueDeploymentsChanged(c.server.Name)
					return
				}
			}

			handler := task.LoggingHandler
			if handler == nil {
				handler = logs.NewHandler(name)
				task.LoggingHandler = handler
			}
			c.registry.recordDeployStarted(name, handler)
			c.logger.Info().Str("deployment", name).Msg("deploy started")
			onStarted(name)

			instance.Deploy(task, DeploymentCallbackFuncs{
				OnSucceeded: func(runtime DeploymentRuntime) {
					c.registry.recordDeploySucceeded(name, runtime)
					c.logger.Info().Str("deployment", name).Msg("deploy succeeded")
					c.notifier.QueueDeploymentsChanged(c.server.Name)
				},
				OnFailed: func(message string) {
					c.registry.recordDeployFailed(name, message)
					c.logger.Error().Str("deployment", name).Str("error", message).Msg("deploy failed")
					c.notifier.QueueDeploymentsChanged(c.server.Name)
				},
			})
		},
	})
}

// Undeploy drives removal of an already-deployed artifact through its runtime
// handle. It does not require a live connection: undeploy is a property of
// the artifact, not of the session.
func (c *Connection) Undeploy(deployment *Deployment, runtime DeploymentRuntime) {
	name := deployment.Name()
	c.registry.recordUndeployStarted(name)
	c.logger.Info().Str("deployment", name).Msg("undeploy started")
	c.notifier.QueueDeploymentsChanged(c.server.Name)

	runtime.Undeploy(UndeployCallbackFuncs{
		OnSucceeded: func() {
			c.registry.recordUndeploySucceeded(name)
			c.logger.Info().Str("deployment", name).Msg("undeploy succeeded")
			c.notifier.QueueDeploymentsChanged(c.server.Name)
		},
		OnFailed: func(message string) {
			c.registry.recordUndeployFailed(name, message, runtime)
			c.logger.Error().Str("deployment", name).Str("error", message).Msg("undeploy failed")
			c.notifier.QueueDeploymentsChanged(c.server.Name)
		},
	})
}

// ComputeDeployments polls the server's own inventory and replaces the
// remote-known set with the result. On poll failure the remote-known set is
// cleared rather than left stale, and the status text carries a diagnostic.
// onFinished is invoked exactly once per call.
func (c *Connection) ComputeDeployments(onFinished func()) {
	c.ensureConnected(ConnectionCallbackFuncs{
		OnConnected: func(instance ServerRuntime) {
			instance.ComputeDeployments(&computeAccumulator{conn: c, onFinished: onFinished})
		},
		OnFailed: func(string) {
			onFinished()
		},
	})
}

// computeAccumulator collects one inventory poll into a transient list before
// committing it to the registry.
type computeAccumulator struct {
	conn       *Connection
	onFinished func()
	names      []string
}

func (a *computeAccumulator) AddDeployment(name string) {
	a.names = append(a.names, name)
}

func (a *computeAccumulator) Succeeded() {
	c := a.conn
	c.registry.replaceRemoteSnapshot(a.names)
	c.logger.Debug().Int("count", len(a.names)).Msg("remote inventory refreshed")
	c.notifier.QueueDeploymentsChanged(c.server.Name)
	a.onFinished()
}

func (a *computeAccumulator) Failed(message string) {
	c := a.conn
	c.registry.clearRemoteSnapshot()
	c.mu.Lock()
	c.statusText = "cannot obtain deployments: " + message
	c.mu.Unlock()
	c.logger.Error().Str("error", message).Msg("remote inventory poll failed")
	c.notifier.QueueDeploymentsChanged(c.server.Name)
	a.onFinished()
}

// Deployments returns the merged deployment view, sorted by name. Safe to
// call concurrently with any mutating operation.
func (c *Connection) Deployments() []*Deployment {
	result := c.registry.snapshot()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// LogHandler returns the log sink associated with a deployment at deploy
// time, or nil if none exists.
func (c *Connection) LogHandler(deployment *Deployment) *logs.Handler {
	return c.registry.logHandler(deployment.Name())
}

// ensureConnected is the primitive every operation goes through. With a live
// handle it takes the success path immediately, without a new attempt.
// Otherwise it transitions to connecting, dials through the connector, and
// settles to connected or disconnected before invoking the callback.
func (c *Connection) ensureConnected(callback ConnectionCallback) {
	c.mu.RLock()
	instance := c.instance
	c.mu.RUnlock()

	if instance != nil {
		callback.Connected(instance)
		return
	}

	c.setStatus(StatusConnecting, "")
	c.logger.Debug().Msg("connecting")

	c.connector.Connect(ConnectionCallbackFuncs{
		OnConnected: func(instance ServerRuntime) {
			c.mu.Lock()
			c.instance = instance
			c.status = StatusConnected
			c.statusText = ""
			c.mu.Unlock()

			c.logger.Info().Msg("connected")
			c.notifier.QueueConnectionStatusChanged(c.server.Name)
			callback.Connected(instance)
		},
		OnFailed: func(message string) {
			c.mu.Lock()
			c.instance = nil
			c.status = StatusDisconnected
			c.statusText = message
			c.mu.Unlock()

			c.logger.Error().Str("error", message).Msg("connect failed")
			c.notifier.QueueConnectionStatusChanged(c.server.Name)
			callback.ConnectionFailed(message)
		},
	})
}

func (c *Connection) setStatus(status ConnectionStatus, text string) {
	c.mu.Lock()
	c.status = status
	c.statusText = text
	c.mu.Unlock()
	c.notifier.QueueConnectionStatusChanged(c.server.Name)
}
