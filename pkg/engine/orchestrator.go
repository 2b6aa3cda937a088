package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/deployment"
	skyerrors "github.com/skylift-dev/skylift/pkg/errors"
	"github.com/skylift-dev/skylift/pkg/provider"
)

// Orchestrator drives deployments and rollbacks: it fans work out to a
// provider client, collects per-function results in declaration order, and
// appends one record to the history store per run.
type Orchestrator struct {
	store deployment.Store
	log   *logrus.Entry
}

// New creates an orchestrator backed by the given history store.
func New(store deployment.Store) *Orchestrator {
	return &Orchestrator{
		store: store,
		log:   logrus.WithField("component", "engine"),
	}
}

// DeployOptions carries per-invocation overrides for a deployment run.
type DeployOptions struct {
	// EnvFile, when set, replaces the env file resolution from the
	// configuration for every function.
	EnvFile string
}

// Deploy runs a full deployment of the configured functions and appends the
// resulting record to history. Pre-deploy hook failures abort before any
// provider call. Individual function failures do not stop the run; they are
// captured in the record and reflected in its outcome.
func (o *Orchestrator) Deploy(ctx context.Context, cfg *config.Config, client provider.Client, opts DeployOptions) (*deployment.Record, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := runHooks(ctx, StageBeforeDeploy, cfg, cfg.Hooks.BeforeDeploy, o.log); err != nil {
		return nil, skyerrors.NewOperationalErrorWithAttrs("deploy", cfg.Project, "", err,
			map[string]interface{}{"stage": string(StageBeforeDeploy)})
	}

	o.log.WithFields(logrus.Fields{
		"project":   cfg.Project,
		"provider":  client.Provider(),
		"functions": len(cfg.Functions),
	}).Info("starting deployment")

	policy := PolicyFromConfig(cfg.Retry)
	states := o.deployFunctions(ctx, cfg, client, policy, opts)

	if countSucceeded(states) > 0 {
		// Post-deploy hook failures are reported but do not invalidate a
		// deployment that already happened.
		if err := runHooks(ctx, StageAfterDeploy, cfg, cfg.Hooks.AfterDeploy, o.log); err != nil {
			o.log.WithError(err).Warn("post-deploy hook failed")
		}
	}

	record := deployment.NewRecord(cfg.Project, client.Provider(), deployment.KindDeploy, states)
	if err := o.store.Append(record); err != nil {
		// The deployment already happened; the attributes preserve what
		// the lost record would have said.
		return nil, skyerrors.NewOperationalErrorWithAttrs("record-deployment", cfg.Project, "", err,
			map[string]interface{}{"outcome": string(record.Outcome), "functions": len(record.Functions)})
	}

	o.log.WithFields(logrus.Fields{
		"id":      record.ID,
		"outcome": record.Outcome,
	}).Info("deployment recorded")
	return record, nil
}

// deployFunctions deploys every configured function and returns one state
// per function, positioned by declaration order regardless of completion
// order.
func (o *Orchestrator) deployFunctions(ctx context.Context, cfg *config.Config, client provider.Client, policy RetryPolicy, opts DeployOptions) []deployment.FunctionState {
	states := make([]deployment.FunctionState, len(cfg.Functions))

	if cfg.Concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(cfg.Concurrency)
		for i, fn := range cfg.Functions {
			i, fn := i, fn
			g.Go(func() error {
				states[i] = o.deployOne(ctx, cfg, client, fn, policy, opts)
				return nil
			})
		}
		g.Wait() //nolint:errcheck // workers never return errors
		return states
	}

	for i, fn := range cfg.Functions {
		states[i] = o.deployOne(ctx, cfg, client, fn, policy, opts)
	}
	return states
}

// deployOne resolves a function's environment and pushes it through the
// provider, retrying transient errors. A cancelled run records the function
// as skipped without calling the provider.
func (o *Orchestrator) deployOne(ctx context.Context, cfg *config.Config, client provider.Client, fn config.FunctionSpec, policy RetryPolicy, opts DeployOptions) deployment.FunctionState {
	if ctx.Err() != nil {
		return deployment.FunctionState{
			Name:   fn.Name,
			Status: deployment.StatusSkipped,
			Error:  "run cancelled before function started",
		}
	}

	log := o.log.WithField("function", fn.Name)
	log.Info("deploying function")

	env, err := config.ResolveEnv(cfg, fn, opts.EnvFile)
	if err != nil {
		log.WithError(err).Error("environment resolution failed")
		return deployment.FunctionState{Name: fn.Name, Status: deployment.StatusFailed, Error: err.Error()}
	}

	var ref string
	err = policy.Do(ctx, func() error {
		r, derr := client.DeployFunction(ctx, fn, env)
		if derr == nil {
			ref = r
		}
		return derr
	})
	if err != nil {
		log.WithError(err).Error("function deployment failed")
		return deployment.FunctionState{Name: fn.Name, Status: deployment.StatusFailed, Error: err.Error()}
	}

	log.WithField("artifact_ref", ref).Info("function deployed")
	return deployment.FunctionState{Name: fn.Name, ArtifactRef: ref, Status: deployment.StatusSucceeded}
}

// ExecutePlan applies a rollback plan and appends the resulting record to
// history. Like Deploy, individual operation failures do not stop the run.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *RollbackPlan, client provider.Client, policy RetryPolicy) (*deployment.Record, error) {
	if plan == nil || plan.Target == nil {
		return nil, fmt.Errorf("nil rollback plan")
	}

	o.log.WithFields(logrus.Fields{
		"target":     plan.Target.ID,
		"operations": len(plan.Operations),
	}).Info("executing rollback")

	states := make([]deployment.FunctionState, len(plan.Operations))
	for i, op := range plan.Operations {
		states[i] = o.executeOperation(ctx, op, client, policy)
	}

	record := deployment.NewRecord(plan.Target.Project, client.Provider(), deployment.KindRollback, states)
	record.RollbackOf = plan.Target.ID
	if err := o.store.Append(record); err != nil {
		return nil, skyerrors.NewOperationalErrorWithAttrs("record-rollback", plan.Target.Project, "", err,
			map[string]interface{}{"outcome": string(record.Outcome), "rollback_of": plan.Target.ID.String()})
	}

	o.log.WithFields(logrus.Fields{
		"id":      record.ID,
		"outcome": record.Outcome,
	}).Info("rollback recorded")
	return record, nil
}

func (o *Orchestrator) executeOperation(ctx context.Context, op RollbackOperation, client provider.Client, policy RetryPolicy) deployment.FunctionState {
	if ctx.Err() != nil {
		return deployment.FunctionState{
			Name:   op.Function,
			Status: deployment.StatusSkipped,
			Error:  "run cancelled before operation started",
		}
	}

	log := o.log.WithField("function", op.Function)

	if op.Remove {
		log.Info("removing function not present in target deployment")
		err := policy.Do(ctx, func() error {
			return client.DeleteFunction(ctx, op.Function)
		})
		if err != nil {
			log.WithError(err).Error("function removal failed")
			return deployment.FunctionState{Name: op.Function, Status: deployment.StatusFailed, Error: err.Error()}
		}
		return deployment.FunctionState{Name: op.Function, Status: deployment.StatusRemoved}
	}

	log.WithField("artifact_ref", op.ToRef).Info("restoring function")
	var ref string
	err := policy.Do(ctx, func() error {
		r, rerr := client.RestoreFunction(ctx, op.Function, op.ToRef)
		if rerr == nil {
			ref = r
		}
		return rerr
	})
	if err != nil {
		log.WithError(err).Error("function restore failed")
		return deployment.FunctionState{Name: op.Function, Status: deployment.StatusFailed, Error: err.Error()}
	}
	return deployment.FunctionState{Name: op.Function, ArtifactRef: ref, Status: deployment.StatusSucceeded}
}

func countSucceeded(states []deployment.FunctionState) int {
	n := 0
	for _, s := range states {
		if s.Status == deployment.StatusSucceeded {
			n++
		}
	}
	return n
}
