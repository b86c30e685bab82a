// Package health provides the Checker/Result abstraction used to poll
// a remote endpoint until it reports healthy: TCPChecker for raw port
// reachability (e.g. a storage endpoint's listening port during
// prechecks). The worker agent's own /health endpoint is polled
// through internal/agentsurface.HealthChecker instead, since it needs
// to decode the agent's JSON body rather than just observe a status
// code.
//
// Every Checker returns a Result{Healthy, Message, CheckedAt,
// Duration}; Status layers hysteresis on top (N consecutive failures
// before flipping unhealthy) for callers that poll on an interval
// rather than a fixed attempt count.
package health
