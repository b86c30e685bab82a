/*
Package types defines the core data structures shared across the
storage-benchmark orchestrator.

This package contains the domain model used by every other package for
state management and orchestration logic: clusters, workers, workloads,
executions, metric samples, and precheck reports.

# Core Types

Cluster & Storage:
  - Cluster: a storage cluster under test (block, file, or object)
  - StorageFamily / BackendVariant: the storage kind and concrete backend
  - CephConnection / NFSConnection / GlusterConnection / S3Connection:
    exactly one is populated per cluster, matching its BackendVariant

Workers:
  - Worker: a remote machine that drives benchmark tools
  - ConnectionStatus: unknown, online, offline, busy, error, unreachable
  - DeploymentStatus: the agent-install lifecycle for a worker

Workloads:
  - Workload: a named, reusable benchmark definition
  - IOParameters / TestParameters: the I/O shape and timing of a run
  - WorkerSelection: all / count / specific worker ids
  - MountParameters: file-workload mount configuration
  - FillClusterPolicy: the write-until-full workload variant

Executions:
  - Execution: one run of a workload against a cluster; the workload is
    copied by value at creation so later edits do not affect in-flight
    runs
  - ExecutionStatus: the top-level state-machine status (see
    internal/execution for the legal transition graph)
  - ExecutionPhase: a finer reporting overlay that never reverses
  - ParticipantState: a worker's role and sub-state within one execution

Metrics & Prechecks:
  - MetricSample: one point-in-time I/O measurement, per-worker or
    aggregate
  - PrecheckReport: the pass/warn/block verdict produced before a run
    starts

# Design Patterns

Enums are typed string constants:

	type ExecutionStatus string
	const (
	    StatusPending ExecutionStatus = "pending"
	    StatusRunning ExecutionStatus = "running"
	)

Optional fields use pointers: a nil *MountParameters means the workload
is not a file workload; a nil *ScalingPolicy means no worker-count
bounds are recorded (scale operations do not consult the policy in
either case).

# Ownership

The ExecutionEngine exclusively owns an Execution record while its
status is non-terminal; other components receive it by reference to
read or persist it, and the config store assigns its ID when the
record is created. Workers and
clusters are owned by the ConfigStore; an Execution holds only a
worker's id, never a pointer into the worker catalog.

# Thread Safety

Values in this package carry no synchronization of their own. Callers
holding a live Execution during a run must go through
internal/execution's locked accessors rather than mutating fields
directly from multiple goroutines.
*/
package types
