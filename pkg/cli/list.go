package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skylift-dev/skylift/pkg/config"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	var (
		configFile       string
		providerOverride string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured functions and their live deployment state",
		Long: `List every function declared in serverless.yml alongside the artifact
currently live on the provider, if any.

Examples:
  skylift list
  skylift list --provider vercel`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, providerOverride, "")
			if err != nil {
				return err
			}

			client, err := newProviderClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			live, err := client.ListFunctions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list functions on %s: %w", cfg.Provider, err)
			}

			liveRefs := make(map[string]string, len(live))
			for _, fn := range live {
				liveRefs[fn.Name] = fn.ArtifactRef
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FUNCTION\tRUNTIME\tSTATUS\tARTIFACT")
			for _, fn := range cfg.Functions {
				ref, deployed := liveRefs[fn.Name]
				status := "not deployed"
				if deployed {
					status = "live"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", fn.Name, fn.Runtime, status, ref)
				delete(liveRefs, fn.Name)
			}
			// Functions live on the provider but absent from the config.
			for _, fn := range live {
				if ref, ok := liveRefs[fn.Name]; ok {
					fmt.Fprintf(w, "%s\t\tlive (not in config)\t%s\n", fn.Name, ref)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVar(&providerOverride, "provider", "", "Override the configured provider (aws or vercel)")

	return cmd
}
