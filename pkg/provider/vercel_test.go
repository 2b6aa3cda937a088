package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylift-dev/skylift/pkg/config"
)

func newVercelTestClient(t *testing.T, handler http.Handler) *VercelClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewVercelClient(VercelOptions{
		Token:     "test-token",
		ProjectID: "prj_123",
		BaseURL:   srv.URL,
	})
	require.NoError(t, err)
	return client
}

func testFunctionSpec(name, path string) config.FunctionSpec {
	return config.FunctionSpec{
		Name:    name,
		Path:    path,
		Runtime: "python3.9",
		Memory:  128,
		Timeout: 30,
	}
}

func writeHandlerSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handler.py")
	require.NoError(t, os.WriteFile(path, []byte("def handler():\n    pass\n"), 0644))
	return path
}

func TestNewVercelClientRequiresToken(t *testing.T) {
	_, err := NewVercelClient(VercelOptions{})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindAuth, perr.Kind)
}

func TestVercelDeployFunction(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v10/projects/prj_123/env", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v13/deployments", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(10<<20))
		assert.Contains(t, r.FormValue("meta"), `"projectId":"prj_123"`)

		_, _, err := r.FormFile("file")
		assert.NoError(t, err)

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "dpl_abc"})
	})

	client := newVercelTestClient(t, mux)
	spec := testFunctionSpec("api-handler", writeHandlerSource(t))

	ref, err := client.DeployFunction(context.Background(), spec, map[string]string{"API_KEY": "k"})
	require.NoError(t, err)
	assert.Equal(t, "dpl_abc", ref)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestVercelDeploySurvivesEnvFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v10/projects/prj_123/env", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"env rejected"}}`, http.StatusBadRequest)
	})
	mux.HandleFunc("POST /v13/deployments", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"uid": "dpl_env"})
	})

	client := newVercelTestClient(t, mux)
	spec := testFunctionSpec("api-handler", writeHandlerSource(t))

	ref, err := client.DeployFunction(context.Background(), spec, map[string]string{"API_KEY": "k"})
	require.NoError(t, err)
	assert.Equal(t, "dpl_env", ref)
}

func TestVercelRestorePromotesDeployment(t *testing.T) {
	promoted := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v10/projects/prj_123/promote/dpl_old", func(w http.ResponseWriter, r *http.Request) {
		promoted = true
		w.WriteHeader(http.StatusOK)
	})

	client := newVercelTestClient(t, mux)

	ref, err := client.RestoreFunction(context.Background(), "api-handler", "dpl_old")
	require.NoError(t, err)
	assert.Equal(t, "dpl_old", ref)
	assert.True(t, promoted)
}

func TestVercelListFunctionsFirstPerName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v6/deployments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "prj_123", r.URL.Query().Get("projectId"))
		_, _ = w.Write([]byte(`{"deployments":[
			{"name":"api-handler","uid":"dpl_3"},
			{"name":"worker","uid":"dpl_2"},
			{"name":"api-handler","uid":"dpl_1"}
		]}`))
	})

	client := newVercelTestClient(t, mux)

	fns, err := client.ListFunctions(context.Background())
	require.NoError(t, err)
	require.Len(t, fns, 2)
	assert.Equal(t, Function{Name: "api-handler", ArtifactRef: "dpl_3"}, fns[0])
	assert.Equal(t, Function{Name: "worker", ArtifactRef: "dpl_2"}, fns[1])
}

func TestVercelDeleteFunction(t *testing.T) {
	var deleted []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v6/deployments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"deployments":[
			{"name":"api-handler","uid":"dpl_3"},
			{"name":"worker","uid":"dpl_2"},
			{"name":"api-handler","uid":"dpl_1"}
		]}`))
	})
	mux.HandleFunc("DELETE /v13/deployments/", func(w http.ResponseWriter, r *http.Request) {
		deleted = append(deleted, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	client := newVercelTestClient(t, mux)

	require.NoError(t, client.DeleteFunction(context.Background(), "api-handler"))
	assert.Equal(t, []string{"/v13/deployments/dpl_3", "/v13/deployments/dpl_1"}, deleted)
}

func TestVercelErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: KindAuth},
		{name: "forbidden", status: http.StatusForbidden, want: KindAuth},
		{name: "rate limited", status: http.StatusTooManyRequests, want: KindTransient},
		{name: "server error", status: http.StatusInternalServerError, want: KindTransient},
		{name: "bad request", status: http.StatusBadRequest, want: KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newVercelTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"nope"}}`, tt.status)
			}))

			_, err := client.ListFunctions(context.Background())
			require.Error(t, err)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.want, perr.Kind)
			assert.Equal(t, tt.want == KindTransient, IsRetryable(err))
		})
	}
}

func TestVercelEnsureProjectCreatesMissingProject(t *testing.T) {
	created := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v9/projects", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"projects":[{"name":"other","id":"prj_other"}]}`))
	})
	mux.HandleFunc("POST /v9/projects", func(w http.ResponseWriter, r *http.Request) {
		created = true
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "prj_new"})
	})
	mux.HandleFunc("GET /v6/deployments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "prj_new", r.URL.Query().Get("projectId"))
		_, _ = w.Write([]byte(`{"deployments":[]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewVercelClient(VercelOptions{
		Token:       "test-token",
		ProjectName: "my-api",
		BaseURL:     srv.URL,
	})
	require.NoError(t, err)

	fns, err := client.ListFunctions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fns)
	assert.True(t, created)
}
