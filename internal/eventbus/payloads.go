package eventbus

// Payload structs for each EventType. A producer marshals the
// appropriate struct into Envelope.Payload; a consumer switches on
// Envelope.Type and unmarshals into the matching struct. There is no
// free-form payload in the core.

// HeartbeatPayload accompanies EventAgentHeartbeat.
type HeartbeatPayload struct {
	AgentVersion string  `json:"agent_version"`
	Hostname     string  `json:"hostname"`
	IsBusy       bool    `json:"is_busy"`
	LoadAverage  float64 `json:"load_average"`
}

// RegisterPayload accompanies EventAgentRegister.
type RegisterPayload struct {
	AgentVersion string `json:"agent_version"`
	Hostname     string `json:"hostname"`
}

// StatusPayload accompanies EventAgentStatus.
type StatusPayload struct {
	SubState string `json:"sub_state"`
	Detail   string `json:"detail"`
}

// ErrorPayload accompanies EventAgentError.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ExecutionStartPayload accompanies EventExecutionStart.
type ExecutionStartPayload struct {
	WorkloadName string `json:"workload_name"`
}

// ExecutionStopPayload accompanies EventExecutionStop.
type ExecutionStopPayload struct {
	Reason string `json:"reason"`
}

// MetricsReportPayload accompanies EventMetricsReport.
type MetricsReportPayload struct {
	ReadOps          float64 `json:"read_ops"`
	WriteOps         float64 `json:"write_ops"`
	ReadBytesPerSec  float64 `json:"read_bytes_per_sec"`
	WriteBytesPerSec float64 `json:"write_bytes_per_sec"`
	LatencyAvgUs     float64 `json:"latency_avg_us"`
	LatencyP99Us     float64 `json:"latency_p99_us"`
}
