package ssh

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/berthd/berthd/pkg/runtime"
)

// serverRuntime performs deployment operations over one live SSH session.
// It implements runtime.ServerRuntime.
type serverRuntime struct {
	client *client
	config *Config
}

// DeploymentName derives the deployment name from the artifact's base name.
func (r *serverRuntime) DeploymentName(source string) string {
	return filepath.Base(source)
}

// Deploy uploads the artifact to the staging directory and moves it into
// the deploy root once the transfer is complete.
func (r *serverRuntime) Deploy(task *runtime.DeploymentTask, callback runtime.DeploymentCallback) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.CommandTimeout)
		defer cancel()

		name := r.DeploymentName(task.Source)
		stagingPath := path.Join(r.config.StagingRoot, name)
		deployPath := path.Join(r.config.DeployRoot, name)

		var sink io.Writer
		if task.LoggingHandler != nil {
			sink = task.LoggingHandler
		}

		if err := r.client.upload(ctx, task.Source, stagingPath, 0644, sink); err != nil {
			log.Warn().Err(err).Str("deployment", name).Msg("deploy upload failed")
			callback.Failed(err.Error())
			return
		}

		if err := r.client.rename(stagingPath, deployPath); err != nil {
			log.Warn().Err(err).Str("deployment", name).Msg("deploy activation failed")
			callback.Failed(err.Error())
			return
		}

		if sink != nil {
			fmt.Fprintf(sink, "activated %s\n", deployPath)
		}
		log.Info().Str("deployment", name).Str("host", r.config.Host).Msg("deployment activated")
		callback.Succeeded(&deploymentRuntime{
			client:     r.client,
			config:     r.config,
			deployPath: deployPath,
		})
	}()
}

// ComputeDeployments lists the deploy root and reports each entry.
func (r *serverRuntime) ComputeDeployments(callback runtime.ComputeDeploymentsCallback) {
	go func() {
		names, err := r.client.listDir(r.config.DeployRoot)
		if err != nil {
			callback.Failed(err.Error())
			return
		}
		for _, name := range names {
			callback.AddDeployment(name)
		}
		callback.Succeeded()
	}()
}

// DeploymentLookup produces a handle for an already-deployed artifact by
// name, for callers that learned the name from an inventory poll rather
// than from a deploy they performed themselves.
type DeploymentLookup interface {
	LookupDeployment(name string) runtime.DeploymentRuntime
}

// LookupDeployment returns an undeploy handle for a named deployment. The
// handle shares this runtime's session.
func (r *serverRuntime) LookupDeployment(name string) runtime.DeploymentRuntime {
	return &deploymentRuntime{
		client:     r.client,
		config:     r.config,
		deployPath: path.Join(r.config.DeployRoot, name),
	}
}

// Disconnect closes the underlying SSH session.
func (r *serverRuntime) Disconnect() {
	if err := r.client.close(); err != nil {
		log.Warn().Err(err).Str("host", r.config.Host).Msg("error closing connection")
	}
}

// deploymentRuntime drives undeploy of one deployed artifact. It reuses
// the session it was deployed over and does not dial.
type deploymentRuntime struct {
	client     *client
	config     *Config
	deployPath string
}

// Undeploy removes the artifact from the deploy root.
func (d *deploymentRuntime) Undeploy(callback runtime.UndeployCallback) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.CommandTimeout)
		defer cancel()

		if err := d.client.removeAll(ctx, d.deployPath); err != nil {
			log.Warn().Err(err).Str("path", d.deployPath).Msg("undeploy failed")
			callback.Failed(err.Error())
			return
		}
		log.Info().Str("path", d.deployPath).Msg("deployment removed")
		callback.Succeeded()
	}()
}
