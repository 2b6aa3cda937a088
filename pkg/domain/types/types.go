// Package types defines core domain identifiers for skylift.
package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DeploymentID is the unique identifier for a recorded deployment run.
// IDs are assigned by the history store and are strictly increasing in
// creation order.
type DeploymentID int64

// String returns the human-facing form of a DeploymentID ("deploy-42").
func (id DeploymentID) String() string {
	return fmt.Sprintf("deploy-%d", int64(id))
}

// IsZero returns true if the DeploymentID has not been assigned yet.
func (id DeploymentID) IsZero() bool {
	return id == 0
}

// ParseDeploymentID parses a deployment identifier from user input.
// Both the "deploy-42" form and the bare numeric form are accepted.
func ParseDeploymentID(s string) (DeploymentID, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "deploy-")
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid deployment id: %q", s)
	}
	return DeploymentID(n), nil
}

// RunToken is an opaque per-run token attached to every deployment record.
type RunToken string

// NewRunToken generates a new unique run token.
func NewRunToken() RunToken {
	return RunToken(uuid.NewString())
}

// String returns the string representation of a RunToken.
func (t RunToken) String() string {
	return string(t)
}

// Provider identifies a serverless compute platform.
type Provider string

const (
	// ProviderAWS deploys functions to AWS Lambda.
	ProviderAWS Provider = "aws"
	// ProviderVercel deploys functions to Vercel.
	ProviderVercel Provider = "vercel"
)

// Valid returns true if the provider is one of the supported platforms.
func (p Provider) Valid() bool {
	return p == ProviderAWS || p == ProviderVercel
}

// String returns the string representation of a Provider.
func (p Provider) String() string {
	return string(p)
}

// ParseProvider parses a provider name from user input.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unsupported provider: %q (supported: aws, vercel)", s)
	}
	return p, nil
}
