package runtime

import "github.com/berthd/berthd/pkg/logs"

// Connector establishes a session with a remote server. Connect must report
// exactly one of Connected or ConnectionFailed, possibly from a different
// goroutine. Connectors must tolerate concurrent Connect calls.
type Connector interface {
	Connect(callback ConnectionCallback)
}

// ConnectionCallback receives the settled outcome of one connect attempt.
type ConnectionCallback interface {
	Connected(instance ServerRuntime)
	ConnectionFailed(message string)
}

// ServerRuntime is the capability obtained from a successful connect. It
// performs deploy and inventory operations against the live session.
type ServerRuntime interface {
	// DeploymentName derives a stable deployment name from a source.
	// It must be idempotent for a given source.
	DeploymentName(source string) string

	// Deploy pushes the task's source to the server and reports exactly one
	// of Succeeded or Failed on the callback.
	Deploy(task *DeploymentTask, callback DeploymentCallback)

	// ComputeDeployments reports zero or more discovered deployment names
	// via AddDeployment, followed by exactly one of Succeeded or Failed.
	ComputeDeployments(callback ComputeDeploymentsCallback)

	// Disconnect tears down the session. Fire and forget.
	Disconnect()
}

// DeploymentCallback receives the settled outcome of one deploy operation.
type DeploymentCallback interface {
	Succeeded(runtime DeploymentRuntime)
	Failed(message string)
}

// ComputeDeploymentsCallback accumulates a remote inventory poll.
type ComputeDeploymentsCallback interface {
	AddDeployment(name string)
	Succeeded()
	Failed(message string)
}

// DeploymentRuntime is the per-deployment capability obtained from a
// successful deploy. It drives undeploy of that artifact.
type DeploymentRuntime interface {
	Undeploy(callback UndeployCallback)
}

// UndeployCallback receives the settled outcome of one undeploy operation.
type UndeployCallback interface {
	Succeeded()
	Failed(message string)
}

// DeploymentTask describes one artifact to push to a server.
type DeploymentTask struct {
	// Source is the local artifact the deployment name is derived from.
	Source string

	// LoggingHandler receives operation output for this deployment.
	LoggingHandler *logs.Handler
}

// Notifier queues change notifications for asynchronous delivery. Calls must
// be non-blocking; they are made outside any registry lock but on the
// mutating goroutine.
type Notifier interface {
	QueueConnectionStatusChanged(connection string)
	QueueDeploymentsChanged(connection string)
}

// AdmissionPolicy decides whether a deploy may be dispatched to a server.
// A non-nil error blocks the deploy and becomes the deployment error text.
type AdmissionPolicy interface {
	AdmitDeploy(server *Server, source string) error
}

// ConnectionCallbackFuncs adapts plain functions to ConnectionCallback.
// Nil funcs are ignored.
type ConnectionCallbackFuncs struct {
	OnConnected func(instance ServerRuntime)
	OnFailed    func(message string)
}

func (f ConnectionCallbackFuncs) Connected(instance ServerRuntime) {
	if f.OnConnected != nil {
		f.OnConnected(instance)
	}
}

func (f ConnectionCallbackFuncs) ConnectionFailed(message string) {
	if f.OnFailed != nil {
		f.OnFailed(message)
	}
}

// DeploymentCallbackFuncs adapts plain functions to DeploymentCallback.
type DeploymentCallbackFuncs struct {
	OnSucceeded func(runtime DeploymentRuntime)
	OnFailed    func(message string)
}

func (f DeploymentCallbackFuncs) Succeeded(runtime DeploymentRuntime) {
	if f.OnSucceeded != nil {
		f.OnSucceeded(runtime)
	}
}

func (f DeploymentCallbackFuncs) Failed(message string) {
	if f.OnFailed != nil {
		f.OnFailed(message)
	}
}

// UndeployCallbackFuncs adapts plain functions to UndeployCallback.
type UndeployCallbackFuncs struct {
	OnSucceeded func()
	OnFailed    func(message string)
}

func (f UndeployCallbackFuncs) Succeeded() {
	if f.OnSucceeded != nil {
		f.OnSucceeded()
	}
}

func (f UndeployCallbackFuncs) Failed(message string) {
	if f.OnFailed != nil {
		f.OnFailed(message)
	}
}
