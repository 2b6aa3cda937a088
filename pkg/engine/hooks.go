package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/sirupsen/logrus"

	"github.com/skylift-dev/skylift/pkg/config"
)

// HookStage identifies where in the deployment lifecycle a hook runs.
type HookStage string

const (
	StageBeforeDeploy HookStage = "before_deploy"
	StageAfterDeploy  HookStage = "after_deploy"
)

// HookError reports a hook that failed to evaluate or execute.
type HookError struct {
	Stage   HookStage
	Command string
	Output  string
	Err     error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s hook %q failed: %v: %s", e.Stage, e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("%s hook %q failed: %v", e.Stage, e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// runHooks executes the hooks for a stage in order, stopping at the first
// failure. Hooks guarded by a false condition are skipped.
func runHooks(ctx context.Context, stage HookStage, cfg *config.Config, hooks []config.HookSpec, log *logrus.Entry) error {
	for _, h := range hooks {
		if h.When != "" {
			ok, err := evalHookCondition(h.When, cfg)
			if err != nil {
				return &HookError{Stage: stage, Command: h.Run, Err: fmt.Errorf("condition %q: %w", h.When, err)}
			}
			if !ok {
				log.WithFields(logrus.Fields{"stage": stage, "command": h.Run}).Debug("hook condition false, skipping")
				continue
			}
		}

		log.WithFields(logrus.Fields{"stage": stage, "command": h.Run}).Info("running hook")

		cmd := exec.CommandContext(ctx, "sh", "-c", h.Run)
		cmd.Env = append(os.Environ(),
			"SKYLIFT_PROJECT="+cfg.Project,
			"SKYLIFT_PROVIDER="+cfg.Provider.String(),
			"SKYLIFT_STAGE="+string(stage),
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return &HookError{
				Stage:   stage,
				Command: h.Run,
				Output:  strings.TrimSpace(string(out)),
				Err:     err,
			}
		}
		if len(out) > 0 {
			log.WithField("stage", stage).Debugf("hook output: %s", strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// evalHookCondition evaluates a hook's when expression against the project
// configuration. The expression must yield a boolean.
func evalHookCondition(expression string, cfg *config.Config) (bool, error) {
	env := map[string]interface{}{
		"project":   cfg.Project,
		"provider":  cfg.Provider.String(),
		"functions": cfg.FunctionNames(),
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate: %w", err)
	}

	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("expression did not yield a boolean")
	}
	return ok, nil
}
