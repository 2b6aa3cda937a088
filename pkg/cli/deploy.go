package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/deployment"
	"github.com/skylift-dev/skylift/pkg/engine"
)

// NewDeployCommand creates the deploy command
func NewDeployCommand() *cobra.Command {
	var (
		configFile       string
		providerOverride string
		functionFilter   string
		envFile          string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the configured functions",
		Long: `Deploy every function declared in serverless.yml to the configured
provider. Each run appends one record to the deployment history, whether it
succeeds fully, partially, or not at all.

Examples:
  # Deploy everything in serverless.yml
  skylift deploy

  # Deploy a single function
  skylift deploy --function api-handler

  # Deploy to a different provider than configured
  skylift deploy --provider vercel

  # Deploy with an alternate environment file
  skylift deploy --env-file .env.production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, providerOverride, functionFilter)
			if err != nil {
				return err
			}

			client, err := newProviderClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			store, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			cmd.Printf("Deploying %s to %s (%d function(s))...\n", cfg.Project, cfg.Provider, len(cfg.Functions))

			orch := engine.New(store)
			record, err := orch.Deploy(cmd.Context(), cfg, client, engine.DeployOptions{EnvFile: envFile})
			if err != nil {
				return err
			}

			printRecord(cmd, record)

			if record.Outcome != deployment.OutcomeSuccess {
				return fmt.Errorf("deployment %s finished with outcome %s", record.ID, record.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVar(&providerOverride, "provider", "", "Override the configured provider (aws or vercel)")
	cmd.Flags().StringVar(&functionFilter, "function", "", "Deploy only the named function")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Environment file overriding per-function env files")

	return cmd
}

// printRecord writes a per-function summary of a deployment record.
func printRecord(cmd *cobra.Command, record *deployment.Record) {
	cmd.Printf("\n%s (%s, outcome: %s)\n", record.ID, record.Kind, record.Outcome)
	for _, fs := range record.Functions {
		switch fs.Status {
		case deployment.StatusSucceeded:
			cmd.Printf("  ✓ %s -> %s\n", fs.Name, fs.ArtifactRef)
		case deployment.StatusRemoved:
			cmd.Printf("  - %s removed\n", fs.Name)
		case deployment.StatusSkipped:
			cmd.Printf("  ~ %s skipped: %s\n", fs.Name, fs.Error)
		default:
			cmd.Printf("  ✗ %s failed: %s\n", fs.Name, fs.Error)
		}
	}
}
