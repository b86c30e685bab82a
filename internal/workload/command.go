package workload

import (
	"time"
)

// CommandLogEntry is one audit-log row for a remote command the driver
// issued on behalf of an execution.
type CommandLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	WorkerID    string    `json:"worker_id"`
	Command     string    `json:"command"`
	Description string    `json:"description"`
	ExitCode    int       `json:"exit_code"`
	Success     bool      `json:"success"`
}

const commandLogTruncateLen = 400

func truncateCommand(cmd string) string {
	if len(cmd) <= commandLogTruncateLen {
		return cmd
	}
	return cmd[:commandLogTruncateLen] + "...(truncated)"
}
