package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/deployment"
	"github.com/skylift-dev/skylift/pkg/engine"
)

// NewRollbackCommand creates the rollback command
func NewRollbackCommand() *cobra.Command {
	var (
		configFile       string
		providerOverride string
		dryRun           bool
	)

	cmd := &cobra.Command{
		Use:   "rollback [deployment-id|previous]",
		Short: "Roll the project back to a recorded deployment",
		Long: `Roll the live provider state back to what a past deployment recorded.
Functions are restored from the artifact references in the target record;
functions that did not exist in the target are removed. The rollback itself
is recorded as a new history entry.

With no argument the target is "previous": the record immediately before
the most recent one.

Examples:
  # Undo the latest deployment
  skylift rollback

  # Roll back to a specific deployment
  skylift rollback deploy-3

  # Show what a rollback would do without touching the provider
  skylift rollback deploy-3 --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := engine.TargetPrevious
			if len(args) == 1 {
				target = args[0]
			}

			cfg, err := loadConfig(configFile, providerOverride, "")
			if err != nil {
				return err
			}

			store, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			history, err := store.List()
			if err != nil {
				return fmt.Errorf("failed to read deployment history: %w", err)
			}

			// Resolve the target before touching the provider so an
			// unknown id fails with not-found, not a credential error.
			targetRecord, err := engine.ResolveTarget(history, target)
			if err != nil {
				return err
			}

			client, err := newProviderClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			live, err := client.ListFunctions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to inspect live state on %s: %w", cfg.Provider, err)
			}

			plan := engine.PlanRollbackTo(targetRecord, live)

			cmd.Printf("Rollback target: %s (%s, %s)\n", plan.Target.ID, plan.Target.Timestamp.Format("2006-01-02 15:04:05"), plan.Target.Outcome)
			if plan.IsNoop() {
				cmd.Println("Live state already matches the target. Nothing to do.")
				return nil
			}

			for _, op := range plan.Operations {
				if op.Remove {
					cmd.Printf("  remove  %s (currently %s)\n", op.Function, op.FromRef)
				} else if op.FromRef == "" {
					cmd.Printf("  restore %s -> %s (not currently deployed)\n", op.Function, op.ToRef)
				} else {
					cmd.Printf("  restore %s: %s -> %s\n", op.Function, op.FromRef, op.ToRef)
				}
			}

			if dryRun {
				cmd.Println("\nDry run: no changes were made.")
				return nil
			}

			orch := engine.New(store)
			record, err := orch.ExecutePlan(cmd.Context(), plan, client, engine.PolicyFromConfig(cfg.Retry))
			if err != nil {
				return err
			}

			printRecord(cmd, record)

			if record.Outcome != deployment.OutcomeSuccess {
				return fmt.Errorf("rollback %s finished with outcome %s", record.ID, record.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVar(&providerOverride, "provider", "", "Override the configured provider (aws or vercel)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the rollback plan without executing it")

	return cmd
}
