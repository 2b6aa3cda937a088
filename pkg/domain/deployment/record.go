// Package deployment defines the DeploymentRecord aggregate for skylift.
package deployment

import (
	"fmt"
	"time"

	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// Kind distinguishes a forward deployment from a rollback run.
type Kind string

const (
	// KindDeploy marks a record produced by a regular deployment run.
	KindDeploy Kind = "deploy"
	// KindRollback marks a record produced by replaying a prior deployment.
	KindRollback Kind = "rollback"
)

// Outcome is the aggregate result of a deployment run.
type Outcome string

const (
	// OutcomeSuccess indicates every function in the run succeeded.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial indicates some but not all functions succeeded.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed indicates every function in the run failed.
	OutcomeFailed Outcome = "failed"
)

// Valid returns true if the outcome is a known value.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomePartial || o == OutcomeFailed
}

// FunctionStatus is the per-function result within a deployment run.
type FunctionStatus string

const (
	// StatusSucceeded indicates the function deployed (or restored) cleanly.
	StatusSucceeded FunctionStatus = "success"
	// StatusFailed indicates the provider call failed after retries.
	StatusFailed FunctionStatus = "failed"
	// StatusSkipped indicates the function was never attempted, for example
	// because the run was cancelled before its turn.
	StatusSkipped FunctionStatus = "skipped"
	// StatusRemoved indicates the function was deleted during a rollback
	// because it did not exist in the target deployment.
	StatusRemoved FunctionStatus = "removed"
)

// FunctionState captures the outcome of a single function within a run.
// States are kept in the order the functions were declared in configuration,
// regardless of execution concurrency.
type FunctionState struct {
	Name        string
	ArtifactRef string
	Status      FunctionStatus
	Error       string
}

// Record is an immutable audit entry for one deploy or rollback run.
// Records are created exactly once, appended to the history store, and
// never mutated afterwards.
type Record struct {
	// ID is assigned by the store on append and is strictly increasing.
	ID types.DeploymentID
	// Token is an opaque unique token generated at run start.
	Token types.RunToken
	// Timestamp is when the run finished and the record was built.
	Timestamp time.Time
	// Project is the configured project name.
	Project string
	// Provider is the platform the run targeted.
	Provider types.Provider
	// Kind is deploy or rollback.
	Kind Kind
	// RollbackOf references the target deployment for rollback records.
	// Zero for regular deployments.
	RollbackOf types.DeploymentID
	// Functions holds the per-function results in declaration order.
	Functions []FunctionState
	// Outcome is the aggregate result across Functions.
	Outcome Outcome
}

// NewRecord builds a record for a completed run. The outcome is derived
// from the function states; the ID stays zero until the store appends it.
func NewRecord(project string, provider types.Provider, kind Kind, states []FunctionState) *Record {
	return &Record{
		Token:     types.NewRunToken(),
		Timestamp: time.Now().UTC(),
		Project:   project,
		Provider:  provider,
		Kind:      kind,
		Functions: states,
		Outcome:   ComputeOutcome(states),
	}
}

// ComputeOutcome derives the aggregate outcome from per-function states.
// Skipped functions count against success: a run that never attempted some
// of its functions is at best partial.
func ComputeOutcome(states []FunctionState) Outcome {
	succeeded, failed := 0, 0
	for _, s := range states {
		switch s.Status {
		case StatusSucceeded, StatusRemoved:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case succeeded == len(states) && len(states) > 0:
		return OutcomeSuccess
	case succeeded == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// FunctionState returns the recorded state for a function by name.
func (r *Record) FunctionState(name string) (FunctionState, bool) {
	for _, s := range r.Functions {
		if s.Name == name {
			return s, true
		}
	}
	return FunctionState{}, false
}

// FunctionNames returns the function names in declaration order.
func (r *Record) FunctionNames() []string {
	names := make([]string, 0, len(r.Functions))
	for _, s := range r.Functions {
		names = append(names, s.Name)
	}
	return names
}

// Summary returns a short human-readable description of the record.
func (r *Record) Summary() string {
	return fmt.Sprintf("%s %s %s (%d functions, %s)",
		r.ID, r.Kind, r.Provider, len(r.Functions), r.Outcome)
}
