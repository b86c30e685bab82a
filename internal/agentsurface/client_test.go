package agentsurface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stormbench/orchestrator/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestClient_Health_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(HealthResponse{AgentVersion: "1.2.3", IsBusy: true})
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)
	c := New(time.Second)
	resp, err := c.Health(context.Background(), host, port)

	require.NoError(t, err)
	assert.Equal(t, "1.2.3", resp.AgentVersion)
	assert.True(t, resp.IsBusy)
}

func TestClient_Health_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)
	c := New(time.Second)
	_, err := c.Health(context.Background(), host, port)

	assert.Error(t, err)
}

func TestClient_Stop_Success(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/stop", r.URL.Path)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)
	c := New(time.Second)
	err := c.Stop(context.Background(), host, port)

	require.NoError(t, err)
	assert.True(t, called)
}

func TestHealthChecker_Check_ReportsHealthyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{AgentVersion: "9"})
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)
	checker := NewHealthChecker(New(time.Second), host, port)
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.Equal(t, health.CheckTypeHTTP, checker.Type())
}

func TestHealthChecker_Check_ReportsUnhealthyOnTransportError(t *testing.T) {
	checker := NewHealthChecker(New(50*time.Millisecond), "127.0.0.1", 1) // port 1 refuses connections
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Message)
}

type fakeChecker struct {
	results []health.Result
	calls   int
}

func (f *fakeChecker) Check(ctx context.Context) health.Result {
	r := f.results[f.calls]
	if f.calls < len(f.results)-1 {
		f.calls++
	}
	return r
}

func (f *fakeChecker) Type() health.CheckType { return health.CheckTypeHTTP }

func TestPollUntilHealthy_ReturnsEarlyOnFirstSuccess(t *testing.T) {
	checker := &fakeChecker{results: []health.Result{{Healthy: true, Message: "ok"}}}
	result := PollUntilHealthy(context.Background(), checker, 5, time.Millisecond)

	assert.True(t, result.Healthy)
	assert.Equal(t, 0, checker.calls)
}

func TestPollUntilHealthy_RetriesUntilHealthy(t *testing.T) {
	checker := &fakeChecker{results: []health.Result{
		{Healthy: false, Message: "not yet"},
		{Healthy: false, Message: "not yet"},
		{Healthy: true, Message: "ok"},
	}}
	result := PollUntilHealthy(context.Background(), checker, 5, time.Millisecond)

	assert.True(t, result.Healthy)
	assert.Equal(t, 2, checker.calls)
}

func TestPollUntilHealthy_ExhaustsAttemptsAndReturnsLastResult(t *testing.T) {
	checker := &fakeChecker{results: []health.Result{{Healthy: false, Message: "always down"}}}
	result := PollUntilHealthy(context.Background(), checker, 3, time.Millisecond)

	assert.False(t, result.Healthy)
	assert.Equal(t, "always down", result.Message)
}

func TestPollUntilHealthy_StopsOnContextCancellation(t *testing.T) {
	checker := &fakeChecker{results: []health.Result{{Healthy: false, Message: "down"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := PollUntilHealthy(ctx, checker, 5, 10*time.Millisecond)
	assert.False(t, result.Healthy)
}
