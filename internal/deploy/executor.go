// Package deploy runs the fixed two-step deployment procedure: pull the
// repository's branch, then rebuild and restart its compose stack. The
// sequence is fail-fast — a failing step ends the deployment and later
// steps never run.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"deploypipe/internal/event"
	"deploypipe/internal/registry"
	"deploypipe/internal/security"
	"deploypipe/pkg/cmdutil"
)

const (
	// SyncTimeout bounds the git pull step.
	SyncTimeout = 300 * time.Second

	// BuildTimeout bounds the compose step. Longer than sync because
	// image builds are slower.
	BuildTimeout = 600 * time.Second

	// StepSync and StepBuild name the entries in the step log.
	StepSync  = "git_pull"
	StepBuild = "docker_compose"
)

// Executor deploys one repository per call, consulting the registry for
// its configuration. Nothing is retried at this layer: retry, if any,
// belongs to whoever republishes the triggering event.
type Executor struct {
	Registry *registry.Registry
	Logger   *slog.Logger

	// Run launches external commands; replaceable in tests.
	Run cmdutil.RunFunc
}

// NewExecutor creates an executor over an immutable registry.
func NewExecutor(reg *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		Registry: reg,
		Logger:   logger,
		Run:      cmdutil.Run,
	}
}

// Execute runs the deployment state machine for one event and always
// returns a well-formed outcome; no step failure escapes as an error.
func (e *Executor) Execute(ctx context.Context, repoName, commit, branch string) *event.DeploymentOutcome {
	e.Logger.Info("starting deployment",
		"repo", repoName, "commit", event.ShortCommit(commit), "branch", branch)

	outcome := &event.DeploymentOutcome{
		Commit: commit,
		Branch: branch,
		Steps:  []event.StepResult{},
	}

	cfg, ok := e.Registry.Lookup(repoName)
	if !ok {
		e.Logger.Warn("no configuration found for repository", "repo", repoName)
		outcome.Message = fmt.Sprintf("Repository %s not configured for deployment", repoName)
		return outcome
	}

	if !cfg.Enabled {
		e.Logger.Warn("deployment disabled for repository", "repo", repoName)
		outcome.Message = fmt.Sprintf("Deployment disabled for %s", repoName)
		return outcome
	}

	if err := security.ValidateBranchName(branch); err != nil {
		outcome.Message = fmt.Sprintf("Invalid branch name for %s: %v", repoName, err)
		return outcome
	}

	// Step 1: pull the latest source for the branch.
	syncArgv := cfg.SyncCommand
	if len(syncArgv) == 0 {
		syncArgv = []string{"git", "pull", "origin", branch}
	}
	syncResult := e.runStep(ctx, outcome, StepSync, syncArgv, cfg.Path, SyncTimeout)
	if !syncResult.OK() {
		e.Logger.Error("git pull failed", "repo", repoName, "stderr", syncResult.Stderr)
		outcome.Message = fmt.Sprintf("Git pull failed for %s", repoName)
		return outcome
	}

	// Step 2: rebuild and restart the compose stack, if configured.
	if !cfg.HasCompose() {
		e.Logger.Info("no compose stack configured, skipping restart", "repo", repoName)
		outcome.Steps = append(outcome.Steps, event.StepResult{
			Step:    StepBuild,
			Success: true,
			Output:  "No Docker compose configured",
		})
		outcome.Success = true
		outcome.Message = fmt.Sprintf("Successfully deployed %s (commit: %s)", repoName, event.ShortCommit(commit))
		return outcome
	}

	buildArgv := []string{"docker", "compose", "-f", cfg.ComposeFile, "up", "-d", "--build"}
	buildResult := e.runStep(ctx, outcome, StepBuild, buildArgv, cfg.ComposePath, BuildTimeout)
	if !buildResult.OK() {
		e.Logger.Error("docker compose failed", "repo", repoName, "stderr", buildResult.Stderr)
		outcome.Message = fmt.Sprintf("Docker compose failed for %s", repoName)
		return outcome
	}

	outcome.Success = true
	outcome.Message = fmt.Sprintf("Successfully deployed %s (commit: %s)", repoName, event.ShortCommit(commit))
	e.Logger.Info("deployment successful", "repo", repoName)
	return outcome
}

// runStep executes one external command and appends its StepResult.
// Launch faults and timeouts surface as failed results, never as errors.
func (e *Executor) runStep(ctx context.Context, outcome *event.DeploymentOutcome, name string, argv []string, dir string, timeout time.Duration) *cmdutil.Result {
	command := cmdutil.FormatCommand(argv)
	e.Logger.Info("executing step", "step", name, "command", command, "dir", filepath.Clean(dir))

	result := e.Run(ctx, cmdutil.ExecOptions{Dir: dir, Timeout: timeout}, argv)

	outcome.Steps = append(outcome.Steps, event.StepResult{
		Step:    name,
		Command: command,
		Success: result.OK(),
		Output:  result.Stdout,
		Error:   result.Stderr,
	})
	return result
}
