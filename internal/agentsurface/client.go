// Package agentsurface is a small HTTP client for the worker agent's
// local surface (GET /health, GET /status, POST /stop). Both the
// Deployer's Verify step and the PrecheckEngine's worker-liveness
// check call it instead of shelling a curl invocation over SSH.
package agentsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stormbench/orchestrator/pkg/health"
)

// HealthResponse mirrors the agent's GET /health body.
type HealthResponse struct {
	AgentVersion     string `json:"agent_version"`
	PID              int    `json:"pid"`
	Hostname         string `json:"hostname"`
	CurrentExecution string `json:"current_execution,omitempty"`
	IsBusy           bool   `json:"is_busy"`
}

// StatusResponse mirrors the agent's GET /status body.
type StatusResponse struct {
	ExecutionID string `json:"execution_id"`
	SubState    string `json:"sub_state"`
	Detail      string `json:"detail"`
}

// Client talks to one worker's agent HTTP surface.
type Client struct {
	httpClient *http.Client
}

// New creates a Client. timeout bounds every request issued through it.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

func baseURL(address string, port int) string {
	return fmt.Sprintf("http://%s:%d", address, port)
}

// Health fetches the agent's liveness/busy state.
func (c *Client) Health(ctx context.Context, address string, port int) (HealthResponse, error) {
	var out HealthResponse
	err := c.getJSON(ctx, baseURL(address, port)+"/health", &out)
	return out, err
}

// Status fetches the agent's current execution-level status.
func (c *Client) Status(ctx context.Context, address string, port int) (StatusResponse, error) {
	var out StatusResponse
	err := c.getJSON(ctx, baseURL(address, port)+"/status", &out)
	return out, err
}

// Stop issues a best-effort abort of the agent's local benchmark
// process. A non-2xx response or transport error is returned but never
// retried here — callers treat it as advisory since the engine's own
// control-signal path and fan-out deadline are authoritative.
func (c *Client) Stop(ctx context.Context, address string, port int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(address, port)+"/stop", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent stop returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent request to %s returned HTTP %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HealthChecker adapts Client.Health into a health.Checker, so the
// PrecheckEngine and Deployer can reuse a common Checker/Result
// abstraction instead of hand-rolling their own polling loop.
type HealthChecker struct {
	client  *Client
	address string
	port    int
}

// NewHealthChecker builds a health.Checker for one worker's agent.
func NewHealthChecker(client *Client, address string, port int) *HealthChecker {
	return &HealthChecker{client: client, address: address, port: port}
}

func (h *HealthChecker) Check(ctx context.Context) health.Result {
	start := time.Now()
	resp, err := h.client.Health(ctx, h.address, h.port)
	if err != nil {
		return health.Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	return health.Result{
		Healthy:   true,
		Message:   fmt.Sprintf("agent %s up, busy=%v", resp.AgentVersion, resp.IsBusy),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func (h *HealthChecker) Type() health.CheckType {
	return health.CheckTypeHTTP
}

// PollUntilHealthy polls Check every interval, up to attempts times,
// returning the final Result.
func PollUntilHealthy(ctx context.Context, checker health.Checker, attempts int, interval time.Duration) health.Result {
	var last health.Result
	for i := 0; i < attempts; i++ {
		last = checker.Check(ctx)
		if last.Healthy {
			return last
		}
		if i < attempts-1 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return health.Result{Healthy: false, Message: ctx.Err().Error(), CheckedAt: time.Now()}
			}
		}
	}
	return last
}
