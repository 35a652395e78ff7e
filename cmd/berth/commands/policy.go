package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/berthd/berthd/pkg/policy"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect deploy admission policies",
	}

	cmd.AddCommand(newPolicyListCommand())
	cmd.AddCommand(newPolicyCheckCommand())

	return cmd
}

func newPolicyListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			engine := a.engine
			if engine == nil {
				// Policies can be inspected even when admission is disabled.
				engine, err = policy.NewEngine(a.tel.Logger.Zerolog())
				if err != nil {
					return err
				}
				if len(a.cfg.Policy.Paths) > 0 {
					if err := engine.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
						return err
					}
				}
			}

			policies := engine.ListPolicies()
			sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(policies)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	}

	return cmd
}

func newPolicyCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <server> <artifact>",
		Short: "Evaluate a deploy against the policies without deploying",
		Example: `  berth policy check web-1 dist/app.tar.gz`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			engine := a.engine
			if engine == nil {
				engine, err = policy.NewEngine(a.tel.Logger.Zerolog())
				if err != nil {
					return err
				}
				engine.SetEnvironment(a.cfg.Telemetry.Environment)
				if len(a.cfg.Policy.Paths) > 0 {
					if err := engine.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
						return err
					}
				}
			}

			serverName, source := args[0], args[1]
			_, rtServer, err := a.resolveServer(ctx, serverName)
			if err != nil {
				return err
			}

			input := &policy.Input{
				Server: &policy.ServerInput{
					Name:    rtServer.Name,
					Address: rtServer.Address,
					Labels:  rtServer.Labels,
				},
				Source: source,
			}

			result, err := engine.EvaluateDeploy(ctx, input)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			for _, v := range result.Violations {
				fmt.Printf("[%s] %s: %s\n", v.Severity, v.Policy, v.Message)
			}
			if result.Allowed {
				fmt.Println("Deploy would be admitted")
				return nil
			}
			return fmt.Errorf("deploy would be blocked")
		},
	}

	return cmd
}
