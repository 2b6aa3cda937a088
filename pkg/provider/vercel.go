package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/types"
	"github.com/skylift-dev/skylift/pkg/packaging"
)

// DefaultVercelAPIURL is the production Vercel REST endpoint.
const DefaultVercelAPIURL = "https://api.vercel.com"

// VercelOptions configures the Vercel provider client.
type VercelOptions struct {
	Token     string
	OrgID     string
	ProjectID string
	// ProjectName is used to look up or create the project when ProjectID
	// is not set.
	ProjectName string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// HTTPClient overrides the default HTTP client, mainly for tests.
	HTTPClient *http.Client
}

// VercelClient deploys functions to Vercel through its REST API. The
// deployment id returned by the API is the artifact reference; rollback
// promotes a recorded deployment back to production.
type VercelClient struct {
	token     string
	orgID     string
	projectID string
	project   string
	baseURL   string
	http      *http.Client
	log       *logrus.Entry
}

// NewVercelClient builds a Vercel client from a bearer token.
func NewVercelClient(opts VercelOptions) (*VercelClient, error) {
	if opts.Token == "" {
		return nil, NewError(types.ProviderVercel, "", KindAuth,
			errors.New("Vercel token not found, set VERCEL_TOKEN"))
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultVercelAPIURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &VercelClient{
		token:     opts.Token,
		orgID:     opts.OrgID,
		projectID: opts.ProjectID,
		project:   opts.ProjectName,
		baseURL:   baseURL,
		http:      httpClient,
		log:       logrus.WithField("provider", types.ProviderVercel),
	}, nil
}

// Provider implements Client.
func (c *VercelClient) Provider() types.Provider {
	return types.ProviderVercel
}

// DeployFunction implements Client: it resolves the project, pushes the
// function's environment variables, and uploads the deployment package.
func (c *VercelClient) DeployFunction(ctx context.Context, spec config.FunctionSpec, env map[string]string) (string, error) {
	projectID, err := c.ensureProject(ctx)
	if err != nil {
		return "", err
	}

	if err := c.setEnvVars(ctx, projectID, spec.Name, env); err != nil {
		// Deployment proceeds without the variables; the provider call
		// that matters is the upload itself.
		c.log.WithError(err).WithField("function", spec.Name).Warn("failed to set environment variables")
	}

	zipBytes, err := packaging.Archive(spec.Path)
	if err != nil {
		return "", NewError(types.ProviderVercel, spec.Name, KindValidation, err)
	}

	meta, err := json.Marshal(map[string]interface{}{
		"name":      spec.Name,
		"projectId": projectID,
		"target":    "production",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal deployment metadata: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("meta", string(meta)); err != nil {
		return "", fmt.Errorf("failed to build deployment request: %w", err)
	}
	fw, err := mw.CreateFormFile("file", spec.Name+"-deployment.zip")
	if err != nil {
		return "", fmt.Errorf("failed to build deployment request: %w", err)
	}
	if _, err := fw.Write(zipBytes); err != nil {
		return "", fmt.Errorf("failed to build deployment request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build deployment request: %w", err)
	}

	c.log.WithField("function", spec.Name).Info("uploading deployment")
	body, err := c.do(ctx, http.MethodPost, "/v13/deployments", spec.Name, &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		id = gjson.GetBytes(body, "uid").String()
	}
	if id == "" {
		return "", NewError(types.ProviderVercel, spec.Name, KindValidation,
			errors.New("deployment response missing id"))
	}

	return id, nil
}

// RestoreFunction implements Client by promoting a recorded deployment back
// to production.
func (c *VercelClient) RestoreFunction(ctx context.Context, name, artifactRef string) (string, error) {
	projectID, err := c.ensureProject(ctx)
	if err != nil {
		return "", err
	}

	c.log.WithFields(logrus.Fields{"function": name, "deployment": artifactRef}).Info("promoting deployment")
	path := fmt.Sprintf("/v10/projects/%s/promote/%s", url.PathEscape(projectID), url.PathEscape(artifactRef))
	if _, err := c.do(ctx, http.MethodPost, path, name, nil, ""); err != nil {
		return "", err
	}
	return artifactRef, nil
}

// ListFunctions implements Client: the live state is the most recent READY
// production deployment per function name.
func (c *VercelClient) ListFunctions(ctx context.Context) ([]Function, error) {
	projectID, err := c.ensureProject(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/v6/deployments?projectId=%s&target=production&state=READY&limit=100", url.QueryEscape(projectID))
	body, err := c.do(ctx, http.MethodGet, path, "", nil, "")
	if err != nil {
		return nil, err
	}

	var functions []Function
	seen := make(map[string]bool)
	// Deployments come back most-recent-first; the first hit per name wins.
	for _, d := range gjson.GetBytes(body, "deployments").Array() {
		name := d.Get("name").String()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		ref := d.Get("uid").String()
		if ref == "" {
			ref = d.Get("id").String()
		}
		functions = append(functions, Function{Name: name, ArtifactRef: ref})
	}

	return functions, nil
}

// DeleteFunction implements Client by deleting every production deployment
// recorded under the function's name.
func (c *VercelClient) DeleteFunction(ctx context.Context, name string) error {
	projectID, err := c.ensureProject(ctx)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/v6/deployments?projectId=%s&limit=100", url.QueryEscape(projectID))
	body, err := c.do(ctx, http.MethodGet, path, name, nil, "")
	if err != nil {
		return err
	}

	for _, d := range gjson.GetBytes(body, "deployments").Array() {
		if d.Get("name").String() != name {
			continue
		}
		uid := d.Get("uid").String()
		if uid == "" {
			uid = d.Get("id").String()
		}
		delPath := fmt.Sprintf("/v13/deployments/%s", url.PathEscape(uid))
		if _, err := c.do(ctx, http.MethodDelete, delPath, name, nil, ""); err != nil {
			return err
		}
	}

	return nil
}

// ensureProject resolves the project id, looking the project up by name and
// creating it when it does not exist yet.
func (c *VercelClient) ensureProject(ctx context.Context) (string, error) {
	if c.projectID != "" {
		return c.projectID, nil
	}
	if c.project == "" {
		return "", NewError(types.ProviderVercel, "", KindValidation,
			errors.New("project name not configured and VERCEL_PROJECT_ID not set"))
	}

	body, err := c.do(ctx, http.MethodGet, "/v9/projects", "", nil, "")
	if err != nil {
		return "", err
	}
	for _, p := range gjson.GetBytes(body, "projects").Array() {
		if p.Get("name").String() == c.project {
			c.projectID = p.Get("id").String()
			return c.projectID, nil
		}
	}

	c.log.WithField("project", c.project).Info("creating project")
	payload, err := json.Marshal(map[string]interface{}{"name": c.project})
	if err != nil {
		return "", fmt.Errorf("failed to marshal project request: %w", err)
	}
	body, err = c.do(ctx, http.MethodPost, "/v9/projects", "", bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}

	c.projectID = gjson.GetBytes(body, "id").String()
	if c.projectID == "" {
		return "", NewError(types.ProviderVercel, "", KindValidation,
			errors.New("project response missing id"))
	}
	return c.projectID, nil
}

// setEnvVars upserts the function's environment variables on the project.
func (c *VercelClient) setEnvVars(ctx context.Context, projectID, function string, env map[string]string) error {
	if len(env) == 0 {
		return nil
	}

	entries := make([]map[string]interface{}, 0, len(env))
	for k, v := range env {
		entries = append(entries, map[string]interface{}{
			"key":    k,
			"value":  v,
			"type":   "encrypted",
			"target": []string{"production", "preview", "development"},
		})
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal environment variables: %w", err)
	}

	path := fmt.Sprintf("/v10/projects/%s/env?upsert=true", url.PathEscape(projectID))
	_, err = c.do(ctx, http.MethodPost, path, function, bytes.NewReader(payload), "application/json")
	return err
}

// do performs one API request and classifies failures.
func (c *VercelClient) do(ctx context.Context, method, path, function string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.orgID != "" {
		req.Header.Set("X-Vercel-Org-Id", c.orgID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewError(types.ProviderVercel, function, KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(types.ProviderVercel, function, KindTransient, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, errorMessage(respBody))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, NewError(types.ProviderVercel, function, KindAuth, apiErr)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, NewError(types.ProviderVercel, function, KindTransient, apiErr)
		default:
			return nil, NewError(types.ProviderVercel, function, KindValidation, apiErr)
		}
	}

	return respBody, nil
}

func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
