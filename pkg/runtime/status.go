package runtime

import "fmt"

// ConnectionStatus represents the lifecycle state of a server connection.
type ConnectionStatus string

const (
	// StatusDisconnected indicates no live session exists.
	StatusDisconnected ConnectionStatus = "disconnected"

	// StatusConnecting indicates a connect attempt is in flight.
	StatusConnecting ConnectionStatus = "connecting"

	// StatusConnected indicates a live session is established.
	StatusConnected ConnectionStatus = "connected"
)

// PresentableText returns the default human-readable text for the status.
func (s ConnectionStatus) PresentableText() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	default:
		return string(s)
	}
}

// Validate checks if the connection status is valid.
func (s ConnectionStatus) Validate() error {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected:
		return nil
	default:
		return fmt.Errorf("invalid connection status: %s", s)
	}
}

// DeploymentStatus represents the lifecycle state of a single deployment.
type DeploymentStatus string

const (
	// DeploymentDeploying indicates a deploy operation is in flight.
	DeploymentDeploying DeploymentStatus = "deploying"

	// DeploymentDeployed indicates the artifact is present on the server.
	DeploymentDeployed DeploymentStatus = "deployed"

	// DeploymentUndeploying indicates an undeploy operation is in flight.
	DeploymentUndeploying DeploymentStatus = "undeploying"

	// DeploymentNotDeployed indicates the artifact is absent, typically
	// because a deploy attempt failed.
	DeploymentNotDeployed DeploymentStatus = "not_deployed"
)

// IsTransitional returns true if the status represents an in-flight operation.
func (s DeploymentStatus) IsTransitional() bool {
	return s == DeploymentDeploying || s == DeploymentUndeploying
}

// IsTerminal returns true if the status represents a settled state.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentDeployed || s == DeploymentNotDeployed
}

// PresentableText returns the default human-readable text for the status.
func (s DeploymentStatus) PresentableText() string {
	switch s {
	case DeploymentDeploying:
		return "Deploying..."
	case DeploymentDeployed:
		return "Deployed"
	case DeploymentUndeploying:
		return "Undeploying..."
	case DeploymentNotDeployed:
		return "Not deployed"
	default:
		return string(s)
	}
}

// Validate checks if the deployment status is valid.
func (s DeploymentStatus) Validate() error {
	switch s {
	case DeploymentDeploying, DeploymentDeployed, DeploymentUndeploying, DeploymentNotDeployed:
		return nil
	default:
		return fmt.Errorf("invalid deployment status: %s", s)
	}
}
