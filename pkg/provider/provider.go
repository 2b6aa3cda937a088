// Package provider defines the capability interface skylift uses to talk to
// serverless platforms, plus one client implementation per platform. The
// deployment engine only ever sees this interface; provider-specific
// behavior never leaks into orchestration.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// Function is a function currently live on the provider.
type Function struct {
	Name string
	// ArtifactRef is the provider-specific identifier for the deployed
	// version. It is opaque to the engine and only compared for equality.
	ArtifactRef string
}

// Client is the provider capability consumed by the deployment engine.
type Client interface {
	// Provider identifies the platform this client is bound to.
	Provider() types.Provider

	// DeployFunction packages and deploys one function with the given
	// environment variables, returning the artifact reference of the new
	// version.
	DeployFunction(ctx context.Context, spec config.FunctionSpec, env map[string]string) (string, error)

	// RestoreFunction makes a previously deployed artifact the live
	// version again, returning the artifact reference now live.
	RestoreFunction(ctx context.Context, name, artifactRef string) (string, error)

	// ListFunctions returns the functions currently live on the provider.
	ListFunctions(ctx context.Context) ([]Function, error)

	// DeleteFunction removes a live function.
	DeleteFunction(ctx context.Context, name string) error
}

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	// KindTransient marks network and throttling failures worth retrying.
	KindTransient ErrorKind = "transient"
	// KindAuth marks credential and permission failures. Fatal immediately.
	KindAuth ErrorKind = "auth"
	// KindValidation marks request problems the provider rejected.
	// Retrying the same request cannot succeed.
	KindValidation ErrorKind = "validation"
)

// Error is a classified provider failure for one function operation.
type Error struct {
	Provider types.Provider
	Function string
	Kind     ErrorKind
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: function %s: %s error: %v", e.Provider, e.Function, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified provider error.
func NewError(p types.Provider, function string, kind ErrorKind, err error) *Error {
	return &Error{Provider: p, Function: function, Kind: kind, Err: err}
}

// IsRetryable reports whether an error should be retried with backoff.
// Authorization and validation errors are fatal immediately; everything
// else (including unclassified failures) is treated as transient.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind != KindAuth && pe.Kind != KindValidation
	}
	return true
}

// New returns a client for the given provider, configured from the
// credential set (environment variables merged over the keyring).
func New(ctx context.Context, p types.Provider, project string, creds map[string]string) (Client, error) {
	switch p {
	case types.ProviderAWS:
		return NewAWSClient(ctx, AWSOptions{
			Region:          creds["AWS_REGION"],
			AccessKeyID:     creds["AWS_ACCESS_KEY_ID"],
			SecretAccessKey: creds["AWS_SECRET_ACCESS_KEY"],
			SessionToken:    creds["AWS_SESSION_TOKEN"],
			RoleARN:         creds["AWS_LAMBDA_ROLE_ARN"],
		})
	case types.ProviderVercel:
		return NewVercelClient(VercelOptions{
			Token:       creds["VERCEL_TOKEN"],
			OrgID:       creds["VERCEL_ORG_ID"],
			ProjectID:   creds["VERCEL_PROJECT_ID"],
			ProjectName: project,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %q", p)
	}
}
