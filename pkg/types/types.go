// Package types defines the domain model shared across the orchestrator:
// clusters, workers, workloads, executions, metric samples, and precheck
// reports.
package types

import "time"

// Cluster describes a storage cluster that workloads are benchmarked
// against.
type Cluster struct {
	Name             string
	StorageFamily    StorageFamily
	BackendVariant   BackendVariant
	AdminNode        string // optional: host used to run cluster CLI tools
	AdminCredentials Credentials
	CephConnection   *CephConnection
	NFSConnection    *NFSConnection
	GlusterConnection *GlusterConnection
	S3Connection     *S3Connection
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StorageFamily is the broad category of storage a cluster provides.
type StorageFamily string

const (
	StorageFamilyBlock  StorageFamily = "block"
	StorageFamilyFile   StorageFamily = "file"
	StorageFamilyObject StorageFamily = "object"
)

// BackendVariant identifies the concrete storage backend implementation.
type BackendVariant string

const (
	BackendCephRBD    BackendVariant = "ceph-rbd"
	BackendCephFS     BackendVariant = "cephfs"
	BackendNFS        BackendVariant = "nfs"
	BackendGlusterFS  BackendVariant = "glusterfs"
	BackendS3Compat   BackendVariant = "s3-compatible"
)

// CephConnection holds Ceph-family connection parameters.
type CephConnection struct {
	MonHosts   []string
	PoolName   string
	UserID     string
	KeyringRef string // reference to a credential held by the ConfigStore
	RepoURL    string // package repo for ceph-common installation
}

// NFSConnection holds NFS connection parameters.
type NFSConnection struct {
	Server      string
	ExportPath  string
	NFSVersion  string
}

// GlusterConnection holds GlusterFS connection parameters.
type GlusterConnection struct {
	Servers      []string
	Volume       string
	BackupServer string
}

// S3Connection holds S3-compatible connection parameters.
type S3Connection struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretRef string // reference to a credential held by the ConfigStore
}

// Worker is a remote machine that drives benchmark tools.
type Worker struct {
	ID          string
	Address     string
	Credentials Credentials
	ControlPort int
	Tags        map[string]string

	// Derived fields maintained by the core.
	ConnectionStatus ConnectionStatus
	LastSeen         time.Time
	DeploymentStatus DeploymentStatus
	CurrentExecution string // empty when not participating in a run

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available reports whether the worker can be selected for a new execution.
func (w *Worker) Available() bool {
	return w.ConnectionStatus == ConnectionOnline && w.CurrentExecution == ""
}

// Credentials carries remote-access credentials for a worker.
type Credentials struct {
	User         string
	Port         int
	PrivateKey   []byte // PEM-encoded; when Password is also set, both are offered
	Password     string
}

// ConnectionStatus is the worker's last-observed reachability.
type ConnectionStatus string

const (
	ConnectionUnknown     ConnectionStatus = "unknown"
	ConnectionOnline      ConnectionStatus = "online"
	ConnectionOffline     ConnectionStatus = "offline"
	ConnectionBusy        ConnectionStatus = "busy"
	ConnectionError       ConnectionStatus = "error"
	ConnectionUnreachable ConnectionStatus = "unreachable"
)

// DeploymentStatus is the worker's agent-deployment lifecycle state.
type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "pending"
	DeploymentConnecting DeploymentStatus = "connecting"
	DeploymentCopying    DeploymentStatus = "copying"
	DeploymentInstalling DeploymentStatus = "installing"
	DeploymentStarting   DeploymentStatus = "starting"
	DeploymentSuccess    DeploymentStatus = "success"
	DeploymentFailed     DeploymentStatus = "failed"
)

// Workload is a named benchmark definition.
type Workload struct {
	Name        string
	ClusterName string
	StorageType StorageFamily
	Tool        Tool

	IO   IOParameters
	Test TestParameters

	Selection      WorkerSelection
	Mount          *MountParameters // only for file workloads
	Scaling        *ScalingPolicy
	FillCluster    *FillClusterPolicy
	Prechecks      PrecheckOptions
	NetworkBaseline *NetworkBaselineSpec // open question: left unspecified, stored but unevaluated

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tool identifies the benchmark binary a workload drives.
type Tool string

const (
	ToolFIO         Tool = "fio"
	ToolIOZone      Tool = "iozone"
	ToolDD          Tool = "dd"
	ToolFillCluster Tool = "fill_cluster"
)

// IOParameters describes the I/O shape of a benchmark run.
type IOParameters struct {
	Pattern       IOPattern
	BlockSize     string // e.g. "4k"
	ReadPercent   int    // [0..100]; WritePercent is 100-ReadPercent
	QueueDepth    int
	JobCount      int
	Direct        bool
	Sync          bool
}

// IOPattern is the access pattern a workload exercises.
type IOPattern string

const (
	PatternRandom     IOPattern = "random"
	PatternSequential IOPattern = "sequential"
	PatternMixed      IOPattern = "mixed"
)

// TestParameters controls the run's timing and per-worker data footprint.
type TestParameters struct {
	Duration     time.Duration
	RampTime     time.Duration
	WarmUp       time.Duration
	FileSize     string // e.g. "1G"
}

// WorkerSelection chooses which workers participate in a run.
type WorkerSelection struct {
	Mode      SelectionMode
	Count     int      // used when Mode == SelectionCount
	WorkerIDs []string // used when Mode == SelectionSpecific
}

// SelectionMode is the worker-selection policy.
type SelectionMode string

const (
	SelectionAll      SelectionMode = "all"
	SelectionCount    SelectionMode = "count"
	SelectionSpecific SelectionMode = "specific"
)

// MountParameters describes how a file workload mounts its filesystem.
type MountParameters struct {
	FilesystemType string // "cephfs-kernel", "cephfs-fuse", "nfs", "glusterfs"
	MountPoint     string
	MountOptions   []string
	AutoUnmount    bool
}

// ScalingPolicy records a workload's minimum and maximum worker counts.
// It is stored with the workload; live scale-up and scale-down do not
// read it and are not bounded by it.
type ScalingPolicy struct {
	MinWorkers int
	MaxWorkers int
}

// FillClusterPolicy configures the fill-cluster workload variant.
type FillClusterPolicy struct {
	TargetPercent     float64 // effective-bytes / cluster-capacity target, e.g. 0.8
	ReplicationFactor int     // used to compute "effective bytes" for replicated pools
	BlockSize         string  // for RBD block-level dd writes
	CapacityBytes     int64   // operator-supplied total cluster capacity; the engine has no RemoteCommand query for live capacity
}

// PrecheckOptions toggles which precheck phases run for a workload.
type PrecheckOptions struct {
	ClusterHealth   bool
	ClientHealth    bool
	NetworkBaseline bool
	CustomCommands  []CustomCommand
	MinHealthyRatio float64 // minimum fraction of workers that must pass worker checks
}

// CustomCommand is an operator-supplied precheck probe.
type CustomCommand struct {
	Name     string
	Command  string
	Blocking bool
}

// NetworkBaselineSpec is accepted and stored but not evaluated; see
// DESIGN.md's Open Question decisions.
type NetworkBaselineSpec struct {
	TargetMbps float64
}

// Execution is a single run of a workload against a cluster.
type Execution struct {
	ID          string // time-ordered, sortable
	DisplayName string

	// Workload is copied by value at creation so later edits to the
	// named workload do not affect an in-flight execution.
	Workload    Workload
	ClusterName string

	Status ExecutionStatus
	Phase  ExecutionPhase

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Participants []ParticipantState

	LastAggregate *MetricSample
	ErrorMessage  string
	ErrorKind     ErrorKind

	MetricsPath string
	CommandLogPath string
	PrecheckReportPath string
	SummaryPath string
}

// ExecutionSummary is the end-of-run rollup computed from the
// MetricsStore and written to executions/<id>/summary.json.
type ExecutionSummary struct {
	ExecutionID      string    `json:"execution_id"`
	Status           ExecutionStatus `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	DurationSeconds  float64   `json:"duration_seconds"`
	ClientCount      int       `json:"client_count"`
	PeakIOPS         float64   `json:"peak_iops"`
	PeakThroughputMB float64   `json:"peak_throughput_mbps"`
	AvgLatencyUs     float64   `json:"avg_latency_us"`
	SampleCount      int       `json:"sample_count"`
	WorkerRoster     []string  `json:"worker_roster"`
}

// ParticipantState is a worker's role and sub-state within one execution.
type ParticipantState struct {
	WorkerID string
	SubState ParticipantSubState
	Error    string
}

// ParticipantSubState is a participating worker's progress within a run.
type ParticipantSubState string

const (
	ParticipantPending   ParticipantSubState = "pending"
	ParticipantPreparing ParticipantSubState = "preparing"
	ParticipantRunning   ParticipantSubState = "running"
	ParticipantStopped   ParticipantSubState = "stopped"
	ParticipantFailed    ParticipantSubState = "failed"
)

// ExecutionStatus is the top-level state-machine status. See
// internal/execution for the legal transition graph.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusPrechecks ExecutionStatus = "prechecks"
	StatusPreparing ExecutionStatus = "preparing"
	StatusRunning   ExecutionStatus = "running"
	StatusPaused    ExecutionStatus = "paused"
	StatusStopping  ExecutionStatus = "stopping"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ExecutionPhase is the finer reporting overlay; phases never reverse.
type ExecutionPhase string

const (
	PhaseInit        ExecutionPhase = "init"
	PhasePrecheck    ExecutionPhase = "precheck"
	PhasePrepare     ExecutionPhase = "prepare"
	PhaseRampUp      ExecutionPhase = "ramp_up"
	PhaseSteadyState ExecutionPhase = "steady_state"
	PhaseRampDown    ExecutionPhase = "ramp_down"
	PhaseCleanup     ExecutionPhase = "cleanup"
	PhaseDone        ExecutionPhase = "done"
)

// ErrorKind classifies a terminal or per-worker failure.
type ErrorKind string

const (
	ErrorNone             ErrorKind = ""
	ErrorTransientRemote  ErrorKind = "transient_remote"
	ErrorAuthFailure      ErrorKind = "auth_failure"
	ErrorToolUnavailable  ErrorKind = "tool_unavailable"
	ErrorMountFailure     ErrorKind = "mount_failure"
	ErrorPrecheckBlocker  ErrorKind = "precheck_blocker"
	ErrorDrained          ErrorKind = "drained"
	ErrorStoreWrite       ErrorKind = "store_write_failure"
	ErrorInternal         ErrorKind = "internal"
)

// MetricSample is one point-in-time I/O measurement.
type MetricSample struct {
	Timestamp time.Time
	Emitter   string // worker id, or "aggregate"

	ReadOps  float64
	WriteOps float64

	ReadBytesPerSec  float64
	WriteBytesPerSec float64

	Latency LatencySummary

	CPUPercent float64
	MemPercent float64
	ErrorCount int
}

// LatencySummary holds a distribution's summary statistics, in
// microseconds.
type LatencySummary struct {
	Avg  float64
	P50  float64
	P90  float64
	P99  float64
	P999 float64
	Min  float64
	Max  float64
}

// PrecheckReport is the outcome of one PrecheckEngine pass.
type PrecheckReport struct {
	ExecutionID string
	StartedAt   time.Time
	EndedAt     time.Time

	Verdict PrecheckVerdict

	Checks []CheckResult

	ExcludedWorkers []string
	Warnings        []string
	BlockingIssues  []string
	ProceedHint     string
}

// PrecheckVerdict is the overall pass/warn/block outcome.
type PrecheckVerdict string

const (
	VerdictPassed              PrecheckVerdict = "passed"
	VerdictPassedWithWarnings  PrecheckVerdict = "passed_with_warnings"
	VerdictFailed              PrecheckVerdict = "failed"
)

// CheckResult is a single named precheck outcome.
type CheckResult struct {
	Name     string
	Severity Severity
	Pass     bool
	Detail   string
}

// Severity is a precheck result's severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)
