package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skylift-dev/skylift/pkg/config"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a serverless.yml without deploying",
		Long: `Validate a serverless.yml against the configuration schema and semantic
rules (unique function names, known provider, positive resource limits).

Examples:
  skylift validate
  skylift validate --config ./staging/serverless.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", configFile, err)
			}

			if err := config.ValidateAgainstSchema(data); err != nil {
				return fmt.Errorf("schema validation failed: %w", err)
			}

			cfg, err := config.Parse(data)
			if err != nil {
				return err
			}

			cmd.Printf("%s is valid: project %q, provider %s, %d function(s)\n",
				configFile, cfg.Project, cfg.Provider, len(cfg.Functions))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Path to the configuration file")

	return cmd
}
