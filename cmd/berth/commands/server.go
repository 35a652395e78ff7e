package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/berthd/berthd/pkg/stores"
)

func newServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage the server registry",
	}

	cmd.AddCommand(newServerAddCommand())
	cmd.AddCommand(newServerListCommand())
	cmd.AddCommand(newServerRemoveCommand())

	return cmd
}

func newServerAddCommand() *cobra.Command {
	var (
		host       string
		port       int
		user       string
		authMethod string
		keyPath    string
		labels     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a server",
		Example: `  # Register a server using key authentication
  berth server add web-1 --host web-1.internal --user deploy

  # Register with an explicit key and labels
  berth server add db-1 --host 10.0.0.5 --port 2222 --user deploy \
    --key ~/.ssh/id_ed25519 --label env=production --label owner=platform`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			labelJSON, err := json.Marshal(labels)
			if err != nil {
				return err
			}

			now := time.Now()
			server := &stores.Server{
				ID:         uuid.New().String(),
				Name:       args[0],
				Address:    host,
				Port:       port,
				User:       user,
				AuthMethod: authMethod,
				KeyPath:    keyPath,
				Labels:     string(labelJSON),
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			if err := a.store.CreateServer(ctx, server); err != nil {
				return fmt.Errorf("failed to register server: %w", err)
			}

			fmt.Printf("Registered server %s (%s@%s:%d)\n", server.Name, server.User, server.Address, server.Port)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "SSH host")
	cmd.Flags().IntVar(&port, "port", 22, "SSH port")
	cmd.Flags().StringVar(&user, "user", "", "SSH user")
	cmd.Flags().StringVar(&authMethod, "auth", "key", "authentication method (key, password)")
	cmd.Flags().StringVar(&keyPath, "key", "", "private key path")
	cmd.Flags().StringToStringVar(&labels, "label", nil, "server label (repeatable, key=value)")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newServerListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			servers, err := a.store.ListServers(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(servers)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tUSER\tAUTH\tLABELS")
			for _, s := range servers {
				fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\t%s\n", s.Name, s.Address, s.Port, s.User, s.AuthMethod, s.Labels)
			}
			return w.Flush()
		},
	}

	return cmd
}

func newServerRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a server from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.store.DeleteServer(ctx, args[0]); err != nil {
				return err
			}

			fmt.Printf("Removed server %s\n", args[0])
			return nil
		},
	}

	return cmd
}
