package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newOperationsCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "operations [server]",
		Short: "Show the operation log",
		Long: `Show the audit log of connect, deploy, undeploy, and refresh operations,
newest first. With a server argument only that server's operations are
shown.`,
		Example: `  # Last 20 operations across all servers
  berth operations

  # Operations against one server
  berth operations web-1 --limit 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			var server *string
			if len(args) == 1 {
				server = &args[0]
			}

			entries, err := a.store.ListOperations(ctx, server, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSERVER\tKIND\tDEPLOYMENT\tOUTCOME\tMESSAGE")
			for _, e := range entries {
				deployment := ""
				if e.Deployment != nil {
					deployment = *e.Deployment
				}
				message := ""
				if e.Message != nil {
					message = *e.Message
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format(time.RFC3339), e.Server, e.Kind, deployment, e.Outcome, message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")

	return cmd
}
