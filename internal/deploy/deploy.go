// Package deploy implements the Deployer: installing and starting the
// worker agent on a set of remote hosts before an execution can use
// them.
//
// The step sequence (Reach, Stage, Copy, Launch, Verify) runs as a
// semaphore-bounded fan-out across workers, with no batching or delay
// between workers; the Verify step reuses the health package's
// Checker/Result shape.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/stormbench/orchestrator/internal/agentsurface"
	"github.com/stormbench/orchestrator/internal/remote"
	"github.com/stormbench/orchestrator/pkg/health"
	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
	"golang.org/x/sync/semaphore"
)

// healthPollAttempts and healthPollInterval bound the agent
// health-poll to N attempts at a fixed interval rather than an
// open-ended wait.
const (
	healthPollAttempts = 6
	healthPollInterval = 5 * time.Second
	logTailLines       = 50
)

// maxConcurrentDeploys bounds how many workers are bootstrapped at
// once, to avoid exhausting the controller host on large fleets.
const maxConcurrentDeploys = 64

// Step names a stage of the deployment pipeline, also used as the
// metrics label and as the worker's transient DeploymentStatus.
type Step string

const (
	StepReach  Step = "reach"
	StepStage  Step = "stage"
	StepCopy   Step = "copy"
	StepLaunch Step = "launch"
	StepVerify Step = "verify"
)

// AgentPayload is the installable agent artifact: binary content plus
// the remote path and start command the Deployer uses for Copy and
// Launch.
type AgentPayload struct {
	Binary       []byte
	RemotePath   string // e.g. "/usr/local/bin/bench-agent"
	StartCommand string // e.g. "pkill -f bench-agent; nohup bench-agent >/var/log/bench-agent.log 2>&1 & echo $!"
	LogPath      string // tailed for diagnostics when Verify fails
}

// Result is the outcome of deploying to one worker.
type Result struct {
	WorkerID string
	Step     Step // step reached; StepVerify on full success
	Success  bool
	Err      error
	LogTail  string // last N log lines, populated only when Verify fails
}

// Deployer drives RemoteCommand sessions to bring workers to
// DeploymentSuccess.
type Deployer struct {
	runner      *remote.Runner
	agentClient *agentsurface.Client
	payload     AgentPayload
}

// New creates a Deployer for the given agent payload.
func New(runner *remote.Runner, payload AgentPayload) *Deployer {
	return &Deployer{runner: runner, agentClient: agentsurface.New(5 * time.Second), payload: payload}
}

var deployLog = log.WithComponent("deploy")

// DeployAll brings every worker to DeploymentSuccess or
// DeploymentFailed, running up to maxConcurrentDeploys in parallel. A
// failure on one worker never aborts the others. onUpdate, if
// non-nil, is called synchronously after each worker's step
// transitions (used by the caller to persist DeploymentStatus as it
// changes).
func (d *Deployer) DeployAll(ctx context.Context, workers []*types.Worker, onUpdate func(workerID string, status types.DeploymentStatus)) []Result {
	sem := semaphore.NewWeighted(maxConcurrentDeploys)
	results := make([]Result, len(workers))

	deployLog.Info().Int("workers", len(workers)).Msg("starting agent deployment")

	done := make(chan struct{}, len(workers))
	for i, w := range workers {
		i, w := i, w
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{WorkerID: w.ID, Err: err}
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			results[i] = d.deployOne(ctx, w, onUpdate)
			done <- struct{}{}
		}()
	}
	for range workers {
		<-done
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	deployLog.Info().Int("succeeded", succeeded).Int("total", len(workers)).Msg("agent deployment complete")
	return results
}

func (d *Deployer) deployOne(ctx context.Context, w *types.Worker, onUpdate func(string, types.DeploymentStatus)) Result {
	wlog := deployLog.With().Str("worker_id", w.ID).Str("address", w.Address).Logger()

	setStatus := func(status types.DeploymentStatus) {
		if onUpdate != nil {
			onUpdate(w.ID, status)
		}
	}

	step := func(step Step, status types.DeploymentStatus, fn func() remote.Result) Result {
		timer := metrics.NewTimer()
		setStatus(status)
		res := fn()
		timer.ObserveDurationVec(metrics.DeployStepDuration, string(step))
		if !res.Success() {
			metrics.DeployStepFailures.WithLabelValues(string(step)).Inc()
			wlog.Warn().Str("step", string(step)).Int("exit_code", res.ExitCode).Err(res.Err).Msg("deploy step failed")
		}
		return Result{WorkerID: w.ID, Step: step, Success: res.Success(), Err: res.Err}
	}

	setStatus(types.DeploymentConnecting)
	if r := step(StepReach, types.DeploymentConnecting, func() remote.Result {
		return d.runner.Run(ctx, w.Address, w.Credentials, "true", 15*time.Second)
	}); !r.Success {
		setStatus(types.DeploymentFailed)
		return r
	}

	if r := step(StepStage, types.DeploymentCopying, func() remote.Result {
		return d.runner.Run(ctx, w.Address, w.Credentials, fmt.Sprintf("mkdir -p %s", parentDir(d.payload.RemotePath)), 15*time.Second)
	}); !r.Success {
		setStatus(types.DeploymentFailed)
		return r
	}

	if r := step(StepCopy, types.DeploymentCopying, func() remote.Result {
		return d.runner.PutFile(ctx, w.Address, w.Credentials, d.payload.Binary, d.payload.RemotePath, 60*time.Second)
	}); !r.Success {
		setStatus(types.DeploymentFailed)
		return r
	}

	if r := step(StepLaunch, types.DeploymentStarting, func() remote.Result {
		return d.runner.Run(ctx, w.Address, w.Credentials, d.payload.StartCommand, 30*time.Second)
	}); !r.Success {
		setStatus(types.DeploymentFailed)
		return r
	}

	setStatus(types.DeploymentStarting)
	timer := metrics.NewTimer()
	checker := agentsurface.NewHealthChecker(d.agentClient, w.Address, w.ControlPort)
	healthResult := agentsurface.PollUntilHealthy(ctx, checker, healthPollAttempts, healthPollInterval)
	timer.ObserveDurationVec(metrics.DeployStepDuration, string(StepVerify))
	if !healthResult.Healthy {
		metrics.DeployStepFailures.WithLabelValues(string(StepVerify)).Inc()
		wlog.Warn().Str("step", string(StepVerify)).Str("message", healthResult.Message).Msg("deploy step failed")
		setStatus(types.DeploymentFailed)
		tail := d.tailLog(ctx, w)
		return Result{
			WorkerID: w.ID, Step: StepVerify, Success: false,
			Err:     fmt.Errorf("agent never became healthy: %s", healthResult.Message),
			LogTail: tail,
		}
	}

	setStatus(types.DeploymentSuccess)
	wlog.Info().Msg("agent deployed")
	return Result{WorkerID: w.ID, Step: StepVerify, Success: true}
}

// tailLog retrieves the agent's last logTailLines log lines over SSH
// for attachment to a Verify failure. Best-effort: a failure to fetch
// the tail never masks the underlying Verify error.
func (d *Deployer) tailLog(ctx context.Context, w *types.Worker) string {
	if d.payload.LogPath == "" {
		return ""
	}
	res := d.runner.Run(ctx, w.Address, w.Credentials, fmt.Sprintf("tail -n %d %s", logTailLines, d.payload.LogPath), 10*time.Second)
	if !res.Success() {
		return ""
	}
	return res.Stdout
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
