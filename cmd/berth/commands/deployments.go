package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/berthd/berthd/pkg/runtime"
	"github.com/berthd/berthd/pkg/stores"
	"github.com/berthd/berthd/pkg/telemetry"
)

func newDeploymentsCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "deployments <server>",
		Short: "List deployments on a server",
		Long: `Poll a server's deployment inventory and print the merged view. Entries
the server reports and entries from operations performed locally are both
shown; a failed poll clears the server-reported entries and the connection
status carries the diagnostic.`,
		Example: `  berth deployments web-1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			name := args[0]

			op := a.startOperation(ctx, "deployment.refresh",
				telemetry.AttrServerName.String(name),
			)
			ctx = op.Ctx
			defer func() { op.End(retErr) }()

			conn, err := a.connection(ctx, name)
			if err != nil {
				return err
			}

			done := make(chan struct{})
			conn.ComputeDeployments(func() { close(done) })

			select {
			case <-done:
			case <-time.After(timeout):
				return fmt.Errorf("timed out polling deployments on %s", name)
			case <-ctx.Done():
				return ctx.Err()
			}

			outcome := "succeeded"
			if conn.Status() != runtime.StatusConnected {
				outcome = "failed"
			}
			a.tel.Metrics.RecordDeploymentRefresh(name, outcome)
			a.recordOperation(ctx, name, stores.OperationRefresh, "", outcome, "")

			if conn.Status() != runtime.StatusConnected {
				return fmt.Errorf("%s: %s", name, conn.StatusText())
			}

			deployments := conn.Deployments()

			if jsonOutput {
				type row struct {
					Name   string `json:"name"`
					Status string `json:"status"`
					Error  string `json:"error,omitempty"`
				}
				rows := make([]row, 0, len(deployments))
				for _, d := range deployments {
					rows = append(rows, row{Name: d.Name(), Status: string(d.Status()), Error: d.Error()})
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tERROR")
			for _, d := range deployments {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name(), d.Status().PresentableText(), d.Error())
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall poll timeout")

	return cmd
}
