package precheck

import (
	"context"
	"testing"

	"github.com/stormbench/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestCheckGroup(t *testing.T) {
	cases := map[string]string{
		"cluster_health": "Cluster",
		"mon_quorum":     "Cluster",
		"osd_status":     "Cluster",
		"pg_status":      "Cluster",
		"capacity":       "Cluster",
		"mgr_status":     "Cluster",
		"worker:w1":      "Worker",
		"custom-check":   "Command",
	}
	for name, want := range cases {
		assert.Equal(t, want, checkGroup(name), "checkGroup(%q)", name)
	}
}

func TestEngine_Run_NoOptsEnabled_PassesTrivially(t *testing.T) {
	e := New(nil)
	report := e.Run(context.Background(), "e1", &types.Cluster{}, nil, types.PrecheckOptions{})

	assert.Equal(t, types.VerdictPassed, report.Verdict)
	assert.Empty(t, report.BlockingIssues)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, "all checks passed", report.ProceedHint)
}

func TestEngine_Run_RecordsExecutionIDAndTimestamps(t *testing.T) {
	e := New(nil)
	report := e.Run(context.Background(), "exec-123", &types.Cluster{}, nil, types.PrecheckOptions{})

	assert.Equal(t, "exec-123", report.ExecutionID)
	assert.False(t, report.StartedAt.IsZero())
	assert.False(t, report.EndedAt.IsZero())
	assert.True(t, !report.EndedAt.Before(report.StartedAt))
}

func TestEngine_RunCustomCommand_NoAdminNodeIsBlocking(t *testing.T) {
	e := New(nil)
	result := e.runCustomCommand(context.Background(), &types.Cluster{}, types.CustomCommand{Name: "check-1", Blocking: true})

	assert.False(t, result.Pass)
	assert.Equal(t, types.SeverityCritical, result.Severity)
	assert.Equal(t, "no admin node configured", result.Detail)
}
