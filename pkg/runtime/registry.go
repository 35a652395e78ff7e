package runtime

import (
	"sync"

	"github.com/berthd/berthd/pkg/logs"
)

// deploymentRegistry is the single source of truth for a connection's
// deployment set. Records are partitioned by provenance:
//
//   - remote: the last successfully polled inventory from the server itself,
//     replaced wholesale on each poll and cleared on poll failure.
//   - local: deployments whose lifecycle is currently driven by this process,
//     updated per key as operations progress.
//
// Each container has its own mutex. Readers merge the two by copying each
// under its lock, remote first then local, so a snapshot is never torn.
// Operations racing on the same name are last-writer-wins at the container
// level; the registry adds no per-name sequencing.
type deploymentRegistry struct {
	remoteMu sync.Mutex
	remote   map[string]*Deployment

	localMu sync.Mutex
	local   map[string]*Deployment

	handlersMu sync.Mutex
	handlers   map[string]*logs.Handler
}

func newDeploymentRegistry() *deploymentRegistry {
	return &deploymentRegistry{
		remote:   make(map[string]*Deployment),
		local:    make(map[string]*Deployment),
		handlers: make(map[string]*logs.Handler),
	}
}

// recordDeployStarted inserts a local entry with status deploying and
// associates the logging handler. Non-blocking.
func (r *deploymentRegistry) recordDeployStarted(name string, handler *logs.Handler) {
	r.localMu.Lock()
	r.local[name] = NewDeployment(name, DeploymentDeploying, "", nil)
	r.localMu.Unlock()

	if handler != nil {
		r.handlersMu.Lock()
		r.handlers[name] = handler
		r.handlersMu.Unlock()
	}
}

// recordDeploySucceeded replaces the local entry with a deployed record
// carrying the runtime handle.
func (r *deploymentRegistry) recordDeploySucceeded(name string, runtime DeploymentRuntime) {
	r.localMu.Lock()
	r.local[name] = NewDeployment(name, DeploymentDeployed, "", runtime)
	r.localMu.Unlock()
}

// recordDeployFailed replaces the local entry with a not-deployed record
// carrying the error text.
func (r *deploymentRegistry) recordDeployFailed(name, message string) {
	r.localMu.Lock()
	r.local[name] = NewDeployment(name, DeploymentNotDeployed, message, nil)
	r.localMu.Unlock()
}

// recordUndeployStarted replaces the local entry with an undeploying record.
func (r *deploymentRegistry) recordUndeployStarted(name string) {
	r.localMu.Lock()
	r.local[name] = NewDeployment(name, DeploymentUndeploying, "", nil)
	r.localMu.Unlock()
}

// recordUndeploySucceeded removes the local entry entirely. A same-name
// remote entry may still be visible until the next poll clears it.
func (r *deploymentRegistry) recordUndeploySucceeded(name string) {
	r.localMu.Lock()
	delete(r.local, name)
	r.localMu.Unlock()
}

// recordUndeployFailed restores a deployed record carrying the error text and
// the original runtime handle: the artifact is still present, only the
// undeploy attempt failed.
func (r *deploymentRegistry) recordUndeployFailed(name, message string, runtime DeploymentRuntime) {
	r.localMu.Lock()
	r.local[name] = NewDeployment(name, DeploymentDeployed, message, runtime)
	r.localMu.Unlock()
}

// replaceRemoteSnapshot wholesale-replaces the remote container with deployed
// records for the given names.
func (r *deploymentRegistry) replaceRemoteSnapshot(names []string) {
	next := make(map[string]*Deployment, len(names))
	for _, name := range names {
		next[name] = NewDeployment(name, DeploymentDeployed, "", nil)
	}

	r.remoteMu.Lock()
	r.remote = next
	r.remoteMu.Unlock()
}

// clearRemoteSnapshot empties the remote container. Used on poll failure so a
// stale inventory is never presented as current.
func (r *deploymentRegistry) clearRemoteSnapshot() {
	r.remoteMu.Lock()
	r.remote = make(map[string]*Deployment)
	r.remoteMu.Unlock()
}

// snapshot returns the merged view: one record per distinct name, local
// entries overriding remote entries of the same name.
func (r *deploymentRegistry) snapshot() []*Deployment {
	merged := make(map[string]*Deployment)

	r.remoteMu.Lock()
	for name, d := range r.remote {
		merged[name] = d
	}
	r.remoteMu.Unlock()

	r.localMu.Lock()
	for name, d := range r.local {
		merged[name] = d
	}
	r.localMu.Unlock()

	result := make([]*Deployment, 0, len(merged))
	for _, d := range merged {
		result = append(result, d)
	}
	return result
}

// logHandler returns the log sink associated at deploy time, or nil.
func (r *deploymentRegistry) logHandler(name string) *logs.Handler {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	return r.handlers[name]
}
