// Package orchestrator is the explicit service container for the
// storage-benchmark orchestrator: it constructs every collaborator
// (ConfigStore, MetricsStore, RemoteCommand runner, PrecheckEngine,
// WorkloadDriver, Deployer, EventBus, ExecutionEngine) and wires them
// together once, at process start, instead of relying on package-level
// singletons.
//
// A Config struct plus a constructor build every collaborator in
// dependency order and hold them as fields, so the engine and its
// callers depend on explicit references rather than global state.
package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/stormbench/orchestrator/internal/configstore"
	"github.com/stormbench/orchestrator/internal/deploy"
	"github.com/stormbench/orchestrator/internal/eventbus"
	"github.com/stormbench/orchestrator/internal/execution"
	"github.com/stormbench/orchestrator/internal/metricsstore"
	"github.com/stormbench/orchestrator/internal/precheck"
	"github.com/stormbench/orchestrator/internal/remote"
	"github.com/stormbench/orchestrator/internal/workload"
	"github.com/stormbench/orchestrator/pkg/log"
)

// Config holds the settings needed to construct an Orchestrator.
type Config struct {
	DataDir        string
	EnableEventBus bool
	Agent          deploy.AgentPayload
}

// Orchestrator owns every collaborator and is the single object a
// CLI entrypoint or test harness needs to construct to drive the
// system. The engine owns the driver; nothing here calls back into
// the engine from a collaborator, collapsing what would otherwise be
// a cycle to a single owner.
type Orchestrator struct {
	Store    *configstore.Store
	Metrics  *metricsstore.Store
	Runner   *remote.Runner
	Precheck *precheck.Engine
	Driver   *workload.Driver
	Deployer *deploy.Deployer
	Bus      *eventbus.Bus // nil when EnableEventBus is false
	Engine   *execution.Engine

	deployQueue chan deployJob
}

var orchLog = log.WithComponent("orchestrator")

// New constructs every collaborator and wires them into an Engine.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	store, err := configstore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening config store: %w", err)
	}

	metricsStore := metricsstore.New(cfg.DataDir)
	runner := remote.New()
	precheckEngine := precheck.New(runner)
	driver := workload.New(runner)
	deployer := deploy.New(runner, cfg.Agent)

	var bus *eventbus.Bus
	if cfg.EnableEventBus {
		bus = eventbus.New()
		bus.Start()
	} else {
		orchLog.Warn().Msg("event bus disabled at startup; degrading to direct-command mode")
	}

	engine := execution.New(store, metricsStore, precheckEngine, driver, bus)

	o := &Orchestrator{
		Store:       store,
		Metrics:     metricsStore,
		Runner:      runner,
		Precheck:    precheckEngine,
		Driver:      driver,
		Deployer:    deployer,
		Bus:         bus,
		Engine:      engine,
		deployQueue: make(chan deployJob, 64),
	}
	go o.runDeployQueue()

	return o, nil
}

// Close releases every collaborator holding an OS resource.
func (o *Orchestrator) Close() error {
	close(o.deployQueue)
	if o.Bus != nil {
		o.Bus.Stop()
	}
	return o.Store.Close()
}
