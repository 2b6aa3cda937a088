package engine

import (
	"fmt"
	"sort"

	"github.com/skylift-dev/skylift/pkg/domain/deployment"
	"github.com/skylift-dev/skylift/pkg/domain/types"
	"github.com/skylift-dev/skylift/pkg/provider"
)

// TargetPrevious selects the record immediately before the most recent one.
const TargetPrevious = "previous"

// RollbackOperation is one step of a rollback plan.
type RollbackOperation struct {
	// Function is the function the operation acts on.
	Function string
	// FromRef is the currently live artifact reference, empty if the
	// function does not exist on the provider.
	FromRef string
	// ToRef is the artifact reference recorded in the target deployment.
	// Empty for removals.
	ToRef string
	// Remove marks a function that is live but absent from the target
	// deployment and must be deleted.
	Remove bool
}

// RollbackPlan describes how to return the provider to the state recorded
// by a past deployment. Functions already matching the target are omitted.
type RollbackPlan struct {
	Target     *deployment.Record
	Operations []RollbackOperation
}

// IsNoop reports whether the live state already matches the target.
func (p *RollbackPlan) IsNoop() bool {
	return len(p.Operations) == 0
}

// PlanRollback computes the operations needed to move the live provider
// state back to the deployment named by target. The target is either a
// deployment id ("deploy-3" or "3") or TargetPrevious. History must be in
// oldest-first order as returned by the store.
func PlanRollback(history []*deployment.Record, live []provider.Function, target string) (*RollbackPlan, error) {
	rec, err := ResolveTarget(history, target)
	if err != nil {
		return nil, err
	}
	return PlanRollbackTo(rec, live), nil
}

// PlanRollbackTo computes the operations needed to move the live provider
// state back to an already-resolved target record. Callers that need to
// reject an unknown target before touching the provider resolve it with
// ResolveTarget first.
func PlanRollbackTo(rec *deployment.Record, live []provider.Function) *RollbackPlan {
	liveRefs := make(map[string]string, len(live))
	for _, fn := range live {
		liveRefs[fn.Name] = fn.ArtifactRef
	}

	// Desired state: functions that actually shipped in the target run.
	desired := make(map[string]string)
	for _, fs := range rec.Functions {
		if fs.Status == deployment.StatusSucceeded {
			desired[fs.Name] = fs.ArtifactRef
		}
	}

	var ops []RollbackOperation

	// Restore in the target record's declaration order so repeated plans
	// come out identical.
	for _, fs := range rec.Functions {
		ref, ok := desired[fs.Name]
		if !ok {
			continue
		}
		cur, exists := liveRefs[fs.Name]
		if exists && cur == ref {
			continue // already matching, idempotent no-op
		}
		ops = append(ops, RollbackOperation{
			Function: fs.Name,
			FromRef:  cur,
			ToRef:    ref,
		})
	}

	// Remove functions that exist now but were not part of the target.
	var extras []string
	for name := range liveRefs {
		if _, ok := desired[name]; !ok {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		ops = append(ops, RollbackOperation{
			Function: name,
			FromRef:  liveRefs[name],
			Remove:   true,
		})
	}

	return &RollbackPlan{Target: rec, Operations: ops}
}

// ResolveTarget finds the record a rollback should replay. The target is
// either a deployment id ("deploy-3" or "3") or TargetPrevious; an unknown
// id fails with deployment.ErrNotFound.
func ResolveTarget(history []*deployment.Record, target string) (*deployment.Record, error) {
	if target == "" || target == TargetPrevious {
		if len(history) < 2 {
			return nil, fmt.Errorf("no deployment before the most recent one: %w", deployment.ErrNotFound)
		}
		return history[len(history)-2], nil
	}

	id, err := types.ParseDeploymentID(target)
	if err != nil {
		return nil, fmt.Errorf("invalid rollback target %q: %w", target, err)
	}
	for _, rec := range history {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, deployment.ErrNotFound)
}
