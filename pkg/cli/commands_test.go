package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/deployment"
	"github.com/skylift-dev/skylift/pkg/domain/types"
	"github.com/skylift-dev/skylift/pkg/storage"
)

// executeCommand runs the root command with args and captures its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestInitCreatesConfig(t *testing.T) {
	t.Setenv("SKYLIFT_CONFIG_DIR", t.TempDir())
	t.Chdir(t.TempDir())

	out, err := executeCommand(t, "init", "my-api")
	require.NoError(t, err)
	assert.Contains(t, out, "Created serverless.yml")

	cfg, err := config.ParseFile(config.DefaultConfigFile)
	require.NoError(t, err)
	assert.Equal(t, "my-api", cfg.Project)
	assert.Equal(t, types.ProviderAWS, cfg.Provider)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	t.Setenv("SKYLIFT_CONFIG_DIR", t.TempDir())
	t.Chdir(t.TempDir())

	_, err := executeCommand(t, "init", "my-api")
	require.NoError(t, err)

	_, err = executeCommand(t, "init", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = executeCommand(t, "init", "other", "--force", "--provider", "vercel")
	require.NoError(t, err)

	cfg, err := config.ParseFile(config.DefaultConfigFile)
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Project)
	assert.Equal(t, types.ProviderVercel, cfg.Provider)
}

func TestInitRejectsUnknownProvider(t *testing.T) {
	t.Setenv("SKYLIFT_CONFIG_DIR", t.TempDir())
	t.Chdir(t.TempDir())

	_, err := executeCommand(t, "init", "my-api", "--provider", "gcp")
	require.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	t.Setenv("SKYLIFT_CONFIG_DIR", t.TempDir())
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yml")
	require.NoError(t, os.WriteFile(good, []byte(`project: my-api
provider: aws
functions:
  - name: api-handler
    path: ./src/api.py
    memory: 128
    timeout: 30
`), 0644))

	out, err := executeCommand(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("project: my-api\nprovider: gcp\nfunctions: []\n"), 0644))

	_, err = executeCommand(t, "validate", "--config", bad)
	require.Error(t, err)
}

func TestHistoryCommandEmpty(t *testing.T) {
	t.Setenv("SKYLIFT_CONFIG_DIR", t.TempDir())

	out, err := executeCommand(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No deployments recorded yet")
}

func TestHistoryCommandListsRecords(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("SKYLIFT_CONFIG_DIR", configDir)

	store, err := storage.NewSQLiteDeploymentStore(filepath.Join(configDir, "history.db"))
	require.NoError(t, err)

	rec := deployment.NewRecord("my-api", types.ProviderAWS, deployment.KindDeploy, []deployment.FunctionState{
		{Name: "api-handler", ArtifactRef: "v1", Status: deployment.StatusSucceeded},
	})
	require.NoError(t, store.Append(rec))
	require.NoError(t, store.Close())

	out, err := executeCommand(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "deploy-1")
	assert.Contains(t, out, "my-api")
	assert.Contains(t, out, "success")

	out, err = executeCommand(t, "history", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "deploy-1"`)
	assert.Contains(t, out, `"artifact_ref": "v1"`)
}

func TestRollbackUnknownDeployment(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("SKYLIFT_CONFIG_DIR", configDir)
	t.Chdir(t.TempDir())

	_, err := executeCommand(t, "init", "my-api")
	require.NoError(t, err)

	store, err := storage.NewSQLiteDeploymentStore(filepath.Join(configDir, "history.db"))
	require.NoError(t, err)

	rec := deployment.NewRecord("my-api", types.ProviderAWS, deployment.KindDeploy, []deployment.FunctionState{
		{Name: "api-handler", ArtifactRef: "v1", Status: deployment.StatusSucceeded},
	})
	require.NoError(t, store.Append(rec))
	require.NoError(t, store.Close())

	// The unknown target must surface as not-found even though no
	// provider credentials are configured: the target is resolved
	// against history before the provider client is built.
	_, err = executeCommand(t, "rollback", "deploy-99")
	require.Error(t, err)
	assert.ErrorIs(t, err, deployment.ErrNotFound)

	store, err = storage.NewSQLiteDeploymentStore(filepath.Join(configDir, "history.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
