package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/berthd/berthd/pkg/runtime"
	"github.com/berthd/berthd/pkg/stores"
	"github.com/berthd/berthd/pkg/telemetry"
)

func newConnectCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "connect <server>",
		Short: "Establish a connection to a server",
		Long: `Establish a connection to a registered server and report the resulting
status. Any existing session is torn down first.`,
		Example: `  berth connect web-1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			name := args[0]

			op := a.startOperation(ctx, "connection.connect",
				telemetry.AttrServerName.String(name),
			)
			ctx = op.Ctx
			defer func() { op.End(retErr) }()

			conn, err := a.connection(ctx, name)
			if err != nil {
				return err
			}

			metrics := a.tel.Metrics
			done := make(chan struct{})
			conn.Connect(func() { close(done) })

			select {
			case <-done:
			case <-time.After(timeout):
				return fmt.Errorf("timed out connecting to %s after %s", name, timeout)
			case <-ctx.Done():
				return ctx.Err()
			}

			status := conn.Status()
			if status == runtime.StatusConnected {
				metrics.RecordConnectAttempt(name, "succeeded")
				a.recordOperation(ctx, name, stores.OperationConnect, "", "succeeded", "")
				fmt.Printf("%s: %s\n", name, conn.StatusText())
				return nil
			}

			metrics.RecordConnectAttempt(name, "failed")
			a.recordOperation(ctx, name, stores.OperationConnect, "", "failed", conn.StatusText())
			return fmt.Errorf("%s: %s", name, conn.StatusText())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall connect timeout")

	return cmd
}
