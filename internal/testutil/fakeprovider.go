// Package testutil provides shared test doubles for skylift packages.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/types"
	"github.com/skylift-dev/skylift/pkg/provider"
)

// Call records a single invocation against the fake provider.
type Call struct {
	Op       string // "deploy", "restore", "delete", "list"
	Function string
	Ref      string
}

// FakeClient is an in-memory provider.Client. Each successful deploy mints a
// new artifact reference; failures are scripted per function name.
type FakeClient struct {
	mu sync.Mutex

	// ProviderName is what Provider() reports. Defaults to aws.
	ProviderName types.Provider

	// FailDeploy maps function names to errors returned by DeployFunction.
	FailDeploy map[string]error
	// FailRestore maps function names to errors returned by RestoreFunction.
	FailRestore map[string]error
	// FailDelete maps function names to errors returned by DeleteFunction.
	FailDelete map[string]error
	// DeployFailuresBefore makes the first N deploy attempts per function
	// fail with a transient error before succeeding. Used for retry tests.
	DeployFailuresBefore map[string]int

	// StableRefs makes DeployFunction return the existing live reference
	// when the function is already deployed, the way a content-addressed
	// provider reports no drift for an unchanged upload.
	StableRefs bool

	live     map[string]string
	attempts map[string]int
	nextRef  int
	calls    []Call
}

// NewFakeClient returns an empty fake provider.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		ProviderName: types.ProviderAWS,
		live:         make(map[string]string),
		attempts:     make(map[string]int),
	}
}

// Provider implements provider.Client.
func (f *FakeClient) Provider() types.Provider {
	return f.ProviderName
}

// DeployFunction implements provider.Client.
func (f *FakeClient) DeployFunction(ctx context.Context, fn config.FunctionSpec, env map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: "deploy", Function: fn.Name})
	f.attempts[fn.Name]++

	if n, ok := f.DeployFailuresBefore[fn.Name]; ok && f.attempts[fn.Name] <= n {
		return "", provider.NewError(f.ProviderName, fn.Name, provider.KindTransient,
			fmt.Errorf("simulated transient failure %d", f.attempts[fn.Name]))
	}
	if err, ok := f.FailDeploy[fn.Name]; ok {
		return "", err
	}

	if f.StableRefs {
		if ref, ok := f.live[fn.Name]; ok {
			return ref, nil
		}
	}

	f.nextRef++
	ref := fmt.Sprintf("ref-%d", f.nextRef)
	f.live[fn.Name] = ref
	return ref, nil
}

// RestoreFunction implements provider.Client.
func (f *FakeClient) RestoreFunction(ctx context.Context, name, artifactRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: "restore", Function: name, Ref: artifactRef})
	if err, ok := f.FailRestore[name]; ok {
		return "", err
	}
	f.live[name] = artifactRef
	return artifactRef, nil
}

// ListFunctions implements provider.Client.
func (f *FakeClient) ListFunctions(ctx context.Context) ([]provider.Function, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: "list"})
	fns := make([]provider.Function, 0, len(f.live))
	for name, ref := range f.live {
		fns = append(fns, provider.Function{Name: name, ArtifactRef: ref})
	}
	return fns, nil
}

// DeleteFunction implements provider.Client.
func (f *FakeClient) DeleteFunction(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: "delete", Function: name})
	if err, ok := f.FailDelete[name]; ok {
		return err
	}
	delete(f.live, name)
	return nil
}

// Live returns a copy of the current live state keyed by function name.
func (f *FakeClient) Live() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.live))
	for k, v := range f.live {
		out[k] = v
	}
	return out
}

// SetLive seeds the provider with a live function state.
func (f *FakeClient) SetLive(name, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[name] = ref
}

// Calls returns a copy of the recorded invocations in order.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Attempts returns how many deploy attempts were made for a function.
func (f *FakeClient) Attempts(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[name]
}
