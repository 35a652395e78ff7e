package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/berthd/berthd/pkg/runtime"
	"github.com/berthd/berthd/pkg/stores"
	"github.com/berthd/berthd/pkg/telemetry"
	"github.com/berthd/berthd/pkg/transports/ssh"
)

func newUndeployCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "undeploy <server> <deployment>",
		Short: "Remove a deployment from a server",
		Long: `Remove a named deployment from a server. The deployment inventory is
refreshed first so the name is verified against what the server reports.`,
		Example: `  berth undeploy web-1 app.tar.gz`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			serverName, name := args[0], args[1]

			op := a.startOperation(ctx, "deployment.undeploy",
				telemetry.AttrServerName.String(serverName),
				telemetry.AttrDeploymentName.String(name),
			)
			ctx = op.Ctx
			defer func() { op.End(retErr) }()

			conn, err := a.connection(ctx, serverName)
			if err != nil {
				return err
			}

			refreshed := make(chan struct{})
			conn.ComputeDeployments(func() { close(refreshed) })
			select {
			case <-refreshed:
			case <-time.After(timeout):
				return fmt.Errorf("timed out refreshing deployments on %s", serverName)
			case <-ctx.Done():
				return ctx.Err()
			}

			if conn.Status() != runtime.StatusConnected {
				return fmt.Errorf("%s: %s", serverName, conn.StatusText())
			}

			deployment := findDeployment(conn, name)
			if deployment == nil {
				return fmt.Errorf("deployment %s not found on %s", name, serverName)
			}

			// Deploys performed in this process carry their runtime handle;
			// remote-known entries need one looked up over a session of its
			// own, torn down once the operation settles.
			rt := deployment.Runtime()
			if rt == nil {
				var teardown func()
				rt, teardown, err = a.lookupRuntime(ctx, serverName, name)
				if err != nil {
					return err
				}
				defer teardown()
			}

			changed := make(chan struct{}, 1)
			sub := subscribeChanges(a, serverName, changed)
			defer a.bus.Unsubscribe(sub)

			conn.Undeploy(deployment, rt)

			deadline := time.After(timeout)
			for {
				d := findDeployment(conn, name)
				if d == nil || !d.Status().IsTransitional() {
					break
				}
				select {
				case <-changed:
				case <-deadline:
					return fmt.Errorf("timed out waiting for undeploy of %s on %s", name, serverName)
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			if d := findDeployment(conn, name); d != nil && d.Error() != "" {
				a.tel.Metrics.RecordUndeploy(serverName, "failed")
				a.recordOperation(ctx, serverName, stores.OperationUndeploy, name, "failed", d.Error())
				return fmt.Errorf("undeploy of %s on %s failed: %s", name, serverName, d.Error())
			}

			a.tel.Metrics.RecordUndeploy(serverName, "succeeded")
			a.recordOperation(ctx, serverName, stores.OperationUndeploy, name, "succeeded", "")
			fmt.Printf("Removed %s from %s\n", name, serverName)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall undeploy timeout")

	return cmd
}

// lookupRuntime establishes a session and produces an undeploy handle for a
// deployment known only by name. The returned teardown closes that session
// and must be called once the undeploy settles.
func (a *app) lookupRuntime(ctx context.Context, serverName, deployment string) (runtime.DeploymentRuntime, func(), error) {
	sshCfg, _, err := a.resolveServer(ctx, serverName)
	if err != nil {
		return nil, nil, err
	}
	connector, err := ssh.NewConnector(sshCfg)
	if err != nil {
		return nil, nil, err
	}
	return lookupDeploymentRuntime(ctx, connector, serverName, deployment)
}

// lookupDeploymentRuntime dials through the connector and resolves the named
// deployment on the resulting session.
func lookupDeploymentRuntime(ctx context.Context, connector runtime.Connector, serverName, deployment string) (runtime.DeploymentRuntime, func(), error) {
	instCh := make(chan runtime.ServerRuntime, 1)
	failCh := make(chan string, 1)
	connector.Connect(runtime.ConnectionCallbackFuncs{
		OnConnected: func(inst runtime.ServerRuntime) { instCh <- inst },
		OnFailed:    func(msg string) { failCh <- msg },
	})

	select {
	case inst := <-instCh:
		lookup, ok := inst.(ssh.DeploymentLookup)
		if !ok {
			inst.Disconnect()
			return nil, nil, fmt.Errorf("transport cannot address deployments by name")
		}
		return lookup.LookupDeployment(deployment), inst.Disconnect, nil
	case msg := <-failCh:
		return nil, nil, fmt.Errorf("failed to connect to %s: %s", serverName, msg)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}
