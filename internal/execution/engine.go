// Package execution implements the ExecutionEngine: the state machine
// that carries one workload run from acceptance through prechecks,
// preparation, the benchmark itself, and cleanup, while remaining
// responsive to stop/pause/resume/scale-up/scale-down control signals.
//
// Collaborators (config store, metrics store, precheck engine,
// deployer, workload driver, event bus) are passed in through the
// constructor and held as fields; the engine never reaches for global
// state.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stormbench/orchestrator/internal/configstore"
	"github.com/stormbench/orchestrator/internal/eventbus"
	"github.com/stormbench/orchestrator/internal/metricsstore"
	"github.com/stormbench/orchestrator/internal/precheck"
	"github.com/stormbench/orchestrator/internal/workload"
	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
)

// maxFanOut bounds concurrent remote sessions issued by any single
// fan-out stage; excess tasks queue on the semaphore rather than being
// dropped, protecting the controller host on large fleets.
const maxFanOut = 64

// fanoutGrace is added to a workload's timing parameters to compute a
// fan-out round's hard deadline, and is reused as the cleanup phase's
// own budget.
const fanoutGrace = 2 * time.Minute

// Engine is this repository's ExecutionEngine implementation.
type Engine struct {
	store    *configstore.Store
	metrics  *metricsstore.Store
	precheck *precheck.Engine
	driver   *workload.Driver
	bus      *eventbus.Bus // nil is legal: direct-command mode

	mu     sync.Mutex
	states map[string]*runState
}

// New creates an Engine. bus may be nil, in which case control signals
// are applied locally but never broadcast.
func New(store *configstore.Store, ms *metricsstore.Store, pe *precheck.Engine, driver *workload.Driver, bus *eventbus.Bus) *Engine {
	return &Engine{
		store:    store,
		metrics:  ms,
		precheck: pe,
		driver:   driver,
		bus:      bus,
		states:   make(map[string]*runState),
	}
}

var engineLog = log.WithComponent("execution")

// SubmitRequest is the accept step's input.
type SubmitRequest struct {
	WorkloadName string
	DisplayName  string
	RunPrechecks bool
}

// Submit allocates an execution record in pending and starts its
// lifecycle on a detached goroutine, returning immediately with the
// created record. The lifecycle runs on context.Background() so it
// outlives the caller's request scope; it is halted only by an
// explicit Stop, never by the submitting request's own context.
func (e *Engine) Submit(req SubmitRequest) (*types.Execution, error) {
	wl, err := e.store.GetWorkload(req.WorkloadName)
	if err != nil {
		return nil, fmt.Errorf("loading workload %s: %w", req.WorkloadName, err)
	}
	cluster, err := e.store.GetCluster(wl.ClusterName)
	if err != nil {
		return nil, fmt.Errorf("loading cluster %s: %w", wl.ClusterName, err)
	}

	exec := &types.Execution{
		DisplayName: req.DisplayName,
		Workload:    *wl,
		ClusterName: cluster.Name,
		Status:      types.StatusPending,
		Phase:       types.PhaseInit,
		CreatedAt:   time.Now(),
	}
	if err := e.store.CreateExecution(exec); err != nil {
		return nil, fmt.Errorf("allocating execution record: %w", err)
	}
	metrics.ExecutionsInFlight.WithLabelValues(string(types.StatusPending)).Inc()

	rs := newRunState()
	e.mu.Lock()
	e.states[exec.ID] = rs
	e.mu.Unlock()

	go e.runLifecycle(context.Background(), exec, cluster, rs, req.RunPrechecks)

	return exec, nil
}

func (e *Engine) lookupRunState(id string) (*runState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, ok := e.states[id]
	return rs, ok
}

func (e *Engine) cleanupRunState(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, id)
}

// Get returns the current persisted state of an execution.
func (e *Engine) Get(id string) (*types.Execution, error) {
	return e.store.GetExecution(id)
}

// List returns every execution record known to the store.
func (e *Engine) List() ([]*types.Execution, error) {
	return e.store.ListExecutions()
}

// InFlightCount returns the number of executions with an active
// lifecycle goroutine (status not yet terminal).
func (e *Engine) InFlightCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.states)
}

// ParticipantCount returns the current participant-set size for an
// in-flight execution, or 0 if the execution is unknown or terminal.
func (e *Engine) ParticipantCount(executionID string) int {
	rs, ok := e.lookupRunState(executionID)
	if !ok {
		return 0
	}
	return len(rs.snapshotParticipants())
}
