package execution

import (
	"sync"

	"github.com/stormbench/orchestrator/internal/workload"
)

// commandLog accumulates CommandLogEntry rows from every fan-out stage
// of one execution's lifecycle (prepare, run or fill-cluster, and
// cleanup), written out as commands.json once the lifecycle reaches
// the end of the cleanup phase. Guarded by a mutex since every stage
// appends from many worker goroutines concurrently.
type commandLog struct {
	mu      sync.Mutex
	entries []workload.CommandLogEntry
}

func newCommandLog() *commandLog {
	return &commandLog{}
}

func (c *commandLog) add(entries ...workload.CommandLogEntry) {
	if len(entries) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
}

func (c *commandLog) snapshot() []workload.CommandLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]workload.CommandLogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
