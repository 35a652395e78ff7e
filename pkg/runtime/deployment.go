package runtime

// Server identifies one registered remote execution target. The manager keys
// connections by Name.
type Server struct {
	// Name is the unique registration name.
	Name string `json:"name"`

	// Address is the remote endpoint, informational at this layer.
	Address string `json:"address"`

	// Labels are key-value pairs for organizing servers.
	Labels map[string]string `json:"labels,omitempty"`
}

// Deployment is an immutable record of one artifact's state on a connection.
// Mutating operations replace the record rather than modifying it in place, so
// a snapshot handed to a caller never changes underneath it.
type Deployment struct {
	name    string
	status  DeploymentStatus
	err     string
	runtime DeploymentRuntime
}

// NewDeployment creates a deployment record. runtime may be nil for any
// status other than deployed.
func NewDeployment(name string, status DeploymentStatus, errText string, runtime DeploymentRuntime) *Deployment {
	return &Deployment{
		name:    name,
		status:  status,
		err:     errText,
		runtime: runtime,
	}
}

// Name returns the deployment name, unique within one connection.
func (d *Deployment) Name() string {
	return d.name
}

// Status returns the deployment lifecycle status.
func (d *Deployment) Status() DeploymentStatus {
	return d.status
}

// Error returns the error text from the last failed operation, if any.
func (d *Deployment) Error() string {
	return d.err
}

// Runtime returns the per-deployment runtime handle, present only once the
// artifact is actually deployed.
func (d *Deployment) Runtime() DeploymentRuntime {
	return d.runtime
}
