package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/types"
	"github.com/skylift-dev/skylift/pkg/provider"
	"github.com/skylift-dev/skylift/pkg/storage"
)

// credentialKeys lists the credential names each provider understands.
// Environment variables take precedence; the keyring fills in the rest.
var credentialKeys = map[types.Provider][]string{
	types.ProviderAWS:    {"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN", "AWS_LAMBDA_ROLE_ARN"},
	types.ProviderVercel: {"VERCEL_TOKEN", "VERCEL_ORG_ID", "VERCEL_PROJECT_ID"},
}

// loadConfig reads and parses the configuration file, applying the
// --provider and --function overrides when set.
func loadConfig(configFile, providerOverride, functionFilter string) (*config.Config, error) {
	cfg, err := config.ParseFile(configFile)
	if err != nil {
		return nil, err
	}

	if providerOverride != "" {
		p, err := types.ParseProvider(providerOverride)
		if err != nil {
			return nil, err
		}
		cfg.Provider = p
	}

	if functionFilter != "" {
		cfg, err = cfg.FilterFunction(functionFilter)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// resolveCredentials gathers provider credentials, preferring environment
// variables over keyring entries so CI overrides always win.
func resolveCredentials(p types.Provider) map[string]string {
	creds := make(map[string]string)
	keyringStore := storage.NewKeyringCredentialStore()

	for _, key := range credentialKeys[p] {
		if v := os.Getenv(key); v != "" {
			creds[key] = v
			continue
		}
		if v, err := keyringStore.Get(key); err == nil && v != "" {
			creds[key] = v
		}
	}
	return creds
}

// newProviderClient builds the provider client for a configuration.
func newProviderClient(ctx context.Context, cfg *config.Config) (provider.Client, error) {
	creds := resolveCredentials(cfg.Provider)
	client, err := provider.New(ctx, cfg.Provider, cfg.Project, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.Provider, err)
	}
	return client, nil
}

// openHistoryStore opens the deployment history database under the config
// directory. Callers must Close it.
func openHistoryStore() (*storage.SQLiteDeploymentStore, error) {
	store, err := storage.NewSQLiteDeploymentStore(GetHistoryDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open deployment history: %w", err)
	}
	return store, nil
}
