package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/berthd/berthd/pkg/runtime"
	"github.com/berthd/berthd/pkg/stores"
	"github.com/berthd/berthd/pkg/telemetry"
)

func newDeployCommand() *cobra.Command {
	var (
		timeout  time.Duration
		showLogs bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <server> <artifact>",
		Short: "Deploy an artifact to a server",
		Long: `Upload a local artifact to a server and activate it. The deployment name
is derived from the artifact's base name. A connection is established if
none exists; a denied or failed deploy is reported as deployment state,
with details in the deployment record.`,
		Example: `  # Deploy an artifact
  berth deploy web-1 dist/app.tar.gz

  # Deploy and print the transfer log
  berth deploy web-1 dist/app.tar.gz --logs`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			serverName, source := args[0], args[1]

			op := a.startOperation(ctx, "deployment.deploy",
				telemetry.AttrServerName.String(serverName),
				telemetry.AttrDeploymentSource.String(source),
			)
			ctx = op.Ctx
			defer func() { op.End(retErr) }()

			conn, err := a.connection(ctx, serverName)
			if err != nil {
				return err
			}

			// Subscribe before dispatching so no change event is missed.
			changed := make(chan struct{}, 1)
			sub := subscribeChanges(a, serverName, changed)
			defer a.bus.Unsubscribe(sub)

			a.tel.Metrics.RecordDeployStarted(serverName)
			start := time.Now()

			started := make(chan string, 1)
			task := &runtime.DeploymentTask{Source: source}
			conn.Deploy(task, func(name string) {
				started <- name
			})

			// The derived name; the onStarted callback confirms it, but a
			// policy denial records state without ever starting.
			name := filepath.Base(source)

			d, outcome, err := awaitDeployment(ctx, conn, serverName, name, started, changed, time.After(timeout))
			if err != nil {
				if outcome != "" {
					a.tel.Metrics.RecordDeployCompleted(serverName, outcome, time.Since(start))
				}
				if outcome == "failed" {
					a.recordOperation(ctx, serverName, stores.OperationDeploy, name, "failed", conn.StatusText())
				}
				return err
			}

			outcome = "succeeded"
			if d.Status() != runtime.DeploymentDeployed {
				outcome = "failed"
			}
			a.tel.Metrics.RecordDeployCompleted(serverName, outcome, time.Since(start))
			a.recordOperation(ctx, serverName, stores.OperationDeploy, name, outcome, d.Error())

			if showLogs {
				printDeployLog(conn, d)
			}

			if outcome == "failed" {
				return fmt.Errorf("deploy of %s to %s failed: %s", name, serverName, d.Error())
			}
			fmt.Printf("Deployed %s to %s\n", name, serverName)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall deploy timeout")
	cmd.Flags().BoolVar(&showLogs, "logs", false, "print the deployment transfer log")

	return cmd
}

// awaitDeployment blocks until the named deployment reaches a terminal state
// and returns its record. A failed connect creates no deployment record and
// produces no further events, so a connection settled to disconnected with
// no record ends the wait immediately rather than running out the deadline.
// The second return value is the metrics outcome label for the error cases.
func awaitDeployment(ctx context.Context, conn *runtime.Connection, serverName, name string, started <-chan string, changed <-chan struct{}, deadline <-chan time.Time) (*runtime.Deployment, string, error) {
	for {
		if d := findDeployment(conn, name); d != nil {
			if d.Status().IsTerminal() {
				return d, "", nil
			}
		} else if conn.Status() == runtime.StatusDisconnected {
			return nil, "failed", fmt.Errorf("deploy of %s to %s did not start: %s", name, serverName, conn.StatusText())
		}

		select {
		case <-started:
		case <-changed:
		case <-deadline:
			if conn.Status() != runtime.StatusConnected {
				return nil, "timeout", fmt.Errorf("deploy of %s to %s did not start: %s", name, serverName, conn.StatusText())
			}
			return nil, "timeout", fmt.Errorf("timed out waiting for deploy of %s to %s", name, serverName)
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
}

func findDeployment(conn *runtime.Connection, name string) *runtime.Deployment {
	for _, d := range conn.Deployments() {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func printDeployLog(conn *runtime.Connection, d *runtime.Deployment) {
	handler := conn.LogHandler(d)
	if handler == nil {
		return
	}
	for _, entry := range handler.Entries() {
		fmt.Println(entry.Line)
	}
}
