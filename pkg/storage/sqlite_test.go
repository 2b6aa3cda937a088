package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylift-dev/skylift/pkg/domain/deployment"
	"github.com/skylift-dev/skylift/pkg/domain/types"
)

func newTestStore(t *testing.T) (*SQLiteDeploymentStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteDeploymentStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dbPath
}

func testRecord(project string, states ...deployment.FunctionState) *deployment.Record {
	if len(states) == 0 {
		states = []deployment.FunctionState{
			{Name: "api-handler", ArtifactRef: "v1", Status: deployment.StatusSucceeded},
		}
	}
	return deployment.NewRecord(project, types.ProviderAWS, deployment.KindDeploy, states)
}

func TestAppendAssignsStrictlyIncreasingIDs(t *testing.T) {
	store, _ := newTestStore(t)

	var last types.DeploymentID
	for i := 0; i < 5; i++ {
		rec := testRecord("my-api")
		require.NoError(t, store.Append(rec))
		assert.False(t, rec.ID.IsZero())
		assert.Greater(t, int64(rec.ID), int64(last))
		last = rec.ID
	}
}

func TestAppendRejectsReusedRecord(t *testing.T) {
	store, _ := newTestStore(t)

	rec := testRecord("my-api")
	require.NoError(t, store.Append(rec))
	require.Error(t, store.Append(rec))
}

func TestAppendRejectsNilRecord(t *testing.T) {
	store, _ := newTestStore(t)
	require.Error(t, store.Append(nil))
}

func TestGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	rec := testRecord("my-api",
		deployment.FunctionState{Name: "api-handler", ArtifactRef: "v7", Status: deployment.StatusSucceeded},
		deployment.FunctionState{Name: "auth-handler", Status: deployment.StatusFailed, Error: "timeout after retries"},
	)
	rec.Kind = deployment.KindRollback
	rec.RollbackOf = 1
	require.NoError(t, store.Append(rec))

	got, err := store.Get(rec.ID)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Token, got.Token)
	assert.Equal(t, "my-api", got.Project)
	assert.Equal(t, types.ProviderAWS, got.Provider)
	assert.Equal(t, deployment.KindRollback, got.Kind)
	assert.Equal(t, types.DeploymentID(1), got.RollbackOf)
	assert.Equal(t, deployment.OutcomePartial, got.Outcome)

	require.Len(t, got.Functions, 2)
	assert.Equal(t, "api-handler", got.Functions[0].Name)
	assert.Equal(t, "v7", got.Functions[0].ArtifactRef)
	assert.Equal(t, deployment.StatusFailed, got.Functions[1].Status)
	assert.Equal(t, "timeout after retries", got.Functions[1].Error)
}

func TestGetNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(types.DeploymentID(99))
	require.ErrorIs(t, err, deployment.ErrNotFound)
}

func TestListReturnsOldestFirst(t *testing.T) {
	store, _ := newTestStore(t)

	first := testRecord("my-api")
	second := testRecord("my-api")
	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(second))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
}

func TestLatestAndLatestBefore(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Latest()
	require.ErrorIs(t, err, deployment.ErrNotFound)

	first := testRecord("my-api")
	second := testRecord("my-api")
	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(second))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	prev, err := store.LatestBefore(second.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, prev.ID)

	_, err = store.LatestBefore(first.ID)
	require.ErrorIs(t, err, deployment.ErrNotFound)
}

func TestHistorySurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	store, err := NewSQLiteDeploymentStore(dbPath)
	require.NoError(t, err)

	rec := testRecord("my-api")
	require.NoError(t, store.Append(rec))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteDeploymentStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Token, got.Token)

	// New appends continue the sequence after reopen.
	next := testRecord("my-api")
	require.NoError(t, reopened.Append(next))
	assert.Greater(t, int64(next.ID), int64(rec.ID))
}

func TestIDsNeverReused(t *testing.T) {
	store, _ := newTestStore(t)

	a := testRecord("my-api")
	b := testRecord("my-api")
	require.NoError(t, store.Append(a))
	require.NoError(t, store.Append(b))

	// AUTOINCREMENT guarantees the next id is past every id ever issued,
	// so two appends can never collide.
	assert.NotEqual(t, a.ID, b.ID)

	c := testRecord("my-api")
	require.NoError(t, store.Append(c))
	assert.Greater(t, int64(c.ID), int64(b.ID))
}

func TestAppendRejectsInvalidOutcome(t *testing.T) {
	store, _ := newTestStore(t)

	rec := testRecord("my-api")
	rec.Outcome = deployment.Outcome("bogus")
	require.Error(t, store.Append(rec))

	// Nothing was persisted.
	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadDetectsCorruptedOutcome(t *testing.T) {
	store, _ := newTestStore(t)

	rec := testRecord("my-api")
	require.NoError(t, store.Append(rec))

	_, err := store.db.Exec(`UPDATE deployments SET outcome = 'bogus' WHERE id = ?`, int64(rec.ID))
	require.NoError(t, err)

	_, err = store.Get(rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, deployment.ErrStoreCorrupt)

	var corrupt *deployment.CorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, rec.ID, corrupt.ID)

	_, err = store.List()
	assert.ErrorIs(t, err, deployment.ErrStoreCorrupt)
}

func TestReadDetectsFunctionStateGap(t *testing.T) {
	store, _ := newTestStore(t)

	rec := testRecord("my-api",
		deployment.FunctionState{Name: "api-handler", ArtifactRef: "v1", Status: deployment.StatusSucceeded},
		deployment.FunctionState{Name: "worker", ArtifactRef: "v2", Status: deployment.StatusSucceeded},
	)
	require.NoError(t, store.Append(rec))

	// Shift the second state out of place so positions are no longer
	// contiguous from zero.
	_, err := store.db.Exec(`UPDATE function_states SET position = 2 WHERE deployment_id = ? AND position = 1`, int64(rec.ID))
	require.NoError(t, err)

	_, err = store.Get(rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, deployment.ErrStoreCorrupt)

	_, err = store.Latest()
	assert.ErrorIs(t, err, deployment.ErrStoreCorrupt)
}
