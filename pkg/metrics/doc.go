/*
Package metrics provides Prometheus metrics collection and exposition
for the storage-benchmark orchestrator.

All metrics are registered at package init via prometheus.MustRegister
and exposed over HTTP for scraping. Categories:

  - Execution: counts/durations by terminal status, in-flight gauges,
    participant-set size per execution.
  - Precheck: pass duration, verdict counts.
  - Deploy: per-step duration and failure counts.
  - Remote command: invocation duration, failure counts by kind.
  - Workload driver: per-tool benchmark run duration.
  - Worker directory: worker counts by connection status.
  - Metrics store: samples appended by stream kind.
  - Event bus: published/dropped counts by topic.

# Usage

	timer := metrics.NewTimer()
	// ... run an operation ...
	timer.ObserveDurationVec(metrics.WorkloadRunDuration, "fio")

	http.Handle("/metrics", metrics.Handler())

# Health reporting

RegisterComponent records the health of a named dependency (the
config store, the event bus); HealthHandler/ReadyHandler/LivenessHandler
expose /health, /ready, and /live endpoints built from that registry.
Readiness requires the "configstore" and "eventbus" components to be
registered and healthy; other registered components do not affect it.
Liveness only checks the process itself.

# Collector

Collector polls the config store's worker catalog and the execution
engine's in-flight set on a fixed interval and republishes them as
gauges, decoupling dashboards from direct access to either component.
*/
package metrics
