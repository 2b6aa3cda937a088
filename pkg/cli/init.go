package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		providerName string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init <project-name>",
		Short: "Create a starter serverless.yml in the current directory",
		Long: `Create a starter serverless.yml for a new project.

Examples:
  # Scaffold an AWS Lambda project
  skylift init my-api

  # Scaffold a Vercel project
  skylift init my-site --provider vercel`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]

			p, err := types.ParseProvider(providerName)
			if err != nil {
				return err
			}

			if _, err := os.Stat(config.DefaultConfigFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", config.DefaultConfigFile)
			}

			cfg := config.Scaffold(project, p)
			data, err := config.ToYAML(cfg)
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			if err := os.WriteFile(config.DefaultConfigFile, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", config.DefaultConfigFile, err)
			}

			cmd.Printf("Created %s for project %q (provider: %s)\n", config.DefaultConfigFile, project, p)
			cmd.Println("Edit the functions section, then run 'skylift deploy'.")
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "aws", "Target provider (aws or vercel)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing serverless.yml")

	return cmd
}
