package commands

import (
	"github.com/spf13/cobra"

	"github.com/berthd/berthd/pkg/config"
	"github.com/berthd/berthd/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run in the foreground, reloading config and policies on change",
		Long: `Run until interrupted, serving metrics and reloading the configuration
file and policy files as they change on disk. Servers added to the config
file are registered on reload; removal still requires 'berth server remove'.
Policy reloading requires policy.watch to be enabled in the config.`,
		Example: `  berth watch --config /etc/berth/config.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if path := resolvedConfigPath(); path != "" {
				watcher := config.NewWatcher(path, a.tel.Logger.Zerolog())
				if err := watcher.Watch(ctx, func(cfg *config.Config) error {
					return a.applyConfigReload(ctx, cfg)
				}); err != nil {
					return err
				}
				defer func() { _ = watcher.Stop() }()
			}

			if a.engine != nil && a.cfg.Policy.Watch && len(a.cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(a.tel.Logger.Zerolog())
				if err := loader.Watch(ctx, a.cfg.Policy.Paths, a.engine.ApplyPolicies); err != nil {
					return err
				}
				defer func() { _ = loader.StopWatching() }()
			}

			a.tel.Logger.Info("Watching for changes")
			<-ctx.Done()
			return nil
		},
	}

	return cmd
}
