// Package config loads and validates the serverless.yml project configuration.
package config

import (
	"fmt"

	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// DefaultConfigFile is the conventional configuration file name.
const DefaultConfigFile = "serverless.yml"

// FunctionSpec describes a single deployable function. Specs are immutable
// once loaded for a run.
type FunctionSpec struct {
	// Name is unique within the project.
	Name string
	// Path points at the function source (a file or a directory).
	Path string
	// Handler is the provider entry point (e.g. "handler.lambda_handler").
	Handler string
	// Runtime names the provider runtime (e.g. "python3.9").
	Runtime string
	// Memory is the memory limit in MB. Must be positive.
	Memory int
	// Timeout is the execution timeout in seconds. Must be positive.
	Timeout int
	// EnvFile optionally points at a .env file with per-function variables.
	EnvFile string
}

// HookSpec is a single lifecycle hook command.
type HookSpec struct {
	// Run is the shell command to execute.
	Run string
	// When optionally guards the hook with a boolean expression evaluated
	// against the run environment (project, provider, functions).
	When string
}

// Hooks groups the lifecycle stages. The stage set is closed: hooks run
// before any provider call and after a run with at least one success,
// in declaration order within each stage.
type Hooks struct {
	BeforeDeploy []HookSpec
	AfterDeploy  []HookSpec
}

// Retry tunes the bounded exponential backoff applied to transient
// provider errors. Zero values fall back to defaults.
type Retry struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int
	// InitialDelayMS is the first backoff delay in milliseconds.
	InitialDelayMS int
	// MaxDelayMS caps the backoff delay in milliseconds.
	MaxDelayMS int
}

// Config is the validated in-memory representation of serverless.yml.
type Config struct {
	Project string
	// Provider is the default deployment target; the CLI flag overrides it.
	Provider types.Provider
	// Concurrency enables bounded parallel fan-out across functions when
	// greater than one. The default (0 or 1) deploys sequentially.
	Concurrency int
	// EnvFile is the project-wide .env file, merged under per-function files.
	EnvFile   string
	Functions []FunctionSpec
	Hooks     Hooks
	Retry     Retry
}

// ValidationError reports a configuration problem. No provider call is ever
// made for an invalid configuration.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks the semantic invariants the deployment engine relies on:
// a project name, a supported provider, a non-empty function list with
// unique names, and positive memory/timeout per function.
func (c *Config) Validate() error {
	if c.Project == "" {
		return &ValidationError{Field: "project", Reason: "required"}
	}
	if !c.Provider.Valid() {
		return &ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", c.Provider)}
	}
	if len(c.Functions) == 0 {
		return &ValidationError{Field: "functions", Reason: "at least one function is required"}
	}
	if c.Concurrency < 0 {
		return &ValidationError{Field: "concurrency", Reason: "must not be negative"}
	}

	seen := make(map[string]bool, len(c.Functions))
	for i, fn := range c.Functions {
		field := fmt.Sprintf("functions[%d]", i)
		if fn.Name == "" {
			return &ValidationError{Field: field + ".name", Reason: "required"}
		}
		if seen[fn.Name] {
			return &ValidationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate function name %q", fn.Name)}
		}
		seen[fn.Name] = true
		if fn.Path == "" {
			return &ValidationError{Field: field + ".path", Reason: "required"}
		}
		if fn.Memory <= 0 {
			return &ValidationError{Field: field + ".memory", Reason: "must be positive"}
		}
		if fn.Timeout <= 0 {
			return &ValidationError{Field: field + ".timeout", Reason: "must be positive"}
		}
	}

	for i, h := range c.Hooks.BeforeDeploy {
		if h.Run == "" {
			return &ValidationError{Field: fmt.Sprintf("hooks.before_deploy[%d].run", i), Reason: "required"}
		}
	}
	for i, h := range c.Hooks.AfterDeploy {
		if h.Run == "" {
			return &ValidationError{Field: fmt.Sprintf("hooks.after_deploy[%d].run", i), Reason: "required"}
		}
	}

	return nil
}

// Function returns the spec with the given name.
func (c *Config) Function(name string) (FunctionSpec, bool) {
	for _, fn := range c.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionSpec{}, false
}

// FilterFunction returns a shallow copy of the config restricted to a single
// function, preserving everything else. Used by `deploy --function`.
func (c *Config) FilterFunction(name string) (*Config, error) {
	fn, ok := c.Function(name)
	if !ok {
		return nil, &ValidationError{Field: "functions", Reason: fmt.Sprintf("function %q not found in configuration", name)}
	}
	filtered := *c
	filtered.Functions = []FunctionSpec{fn}
	return &filtered, nil
}

// FunctionNames returns the configured function names in declaration order.
func (c *Config) FunctionNames() []string {
	names := make([]string, 0, len(c.Functions))
	for _, fn := range c.Functions {
		names = append(names, fn.Name)
	}
	return names
}
