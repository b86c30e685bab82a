package execution

import (
	"fmt"

	"github.com/stormbench/orchestrator/internal/eventbus"
	"github.com/stormbench/orchestrator/pkg/types"
)

// Stop requests the execution transition to cancelled at the next
// fan-out checkpoint and immediately cancels the current phase's
// context, aborting any in-flight remote commands rather than waiting
// for them to return on their own.
func (e *Engine) Stop(id string) error {
	rs, ok := e.lookupRunState(id)
	if !ok {
		return fmt.Errorf("execution %s is not running in this engine", id)
	}
	rs.requestStop()
	rs.cancelPhase()
	e.publishBroadcast(id, eventbus.EventExecutionStop, eventbus.ExecutionStopPayload{Reason: "operator stop"})
	return nil
}

// Pause requests the execution pause at the next checkpoint. A no-op
// if a stop has already been requested — stop wins.
func (e *Engine) Pause(id string) error {
	rs, ok := e.lookupRunState(id)
	if !ok {
		return fmt.Errorf("execution %s is not running in this engine", id)
	}
	rs.requestPause()
	e.publishBroadcast(id, eventbus.EventExecutionPause, nil)
	return nil
}

// Resume clears a prior pause request.
func (e *Engine) Resume(id string) error {
	rs, ok := e.lookupRunState(id)
	if !ok {
		return fmt.Errorf("execution %s is not running in this engine", id)
	}
	rs.requestResume()
	e.publishBroadcast(id, eventbus.EventExecutionResume, nil)
	return nil
}

// ScaleUp selects up to count currently-online, non-participating
// workers (or the workers named by ids) and queues them to join the
// run at the fan-out loop's next iteration. Returns (nil, nil) when
// the execution is not in running or no eligible worker exists.
func (e *Engine) ScaleUp(id string, count int, ids []string) ([]*types.Worker, error) {
	rs, ok := e.lookupRunState(id)
	if !ok {
		return nil, fmt.Errorf("execution %s is not running in this engine", id)
	}
	exec, err := e.store.GetExecution(id)
	if err != nil {
		return nil, err
	}
	if exec.Status != types.StatusRunning {
		return nil, nil
	}

	all, err := e.store.ListWorkers()
	if err != nil {
		return nil, err
	}
	current := rs.snapshotParticipants()
	participating := make(map[string]bool, len(current))
	for _, w := range current {
		participating[w.ID] = true
	}

	var candidates []*types.Worker
	if len(ids) > 0 {
		idSet := make(map[string]bool, len(ids))
		for _, wid := range ids {
			idSet[wid] = true
		}
		for _, w := range all {
			if idSet[w.ID] && w.Available() && !participating[w.ID] {
				candidates = append(candidates, w)
			}
		}
	} else {
		for _, w := range all {
			if len(candidates) >= count {
				break
			}
			if w.Available() && !participating[w.ID] {
				candidates = append(candidates, w)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	select {
	case rs.scaleUpCh <- candidates:
	default:
		return nil, fmt.Errorf("scale-up queue full for execution %s", id)
	}
	return candidates, nil
}

// ScaleDown removes count workers from the tail of the participant set
// (or the workers named by ids), cancelling their in-flight commands.
// The execution continues as long as at least one participant
// remains; draining the set entirely is detected when the run fan-out
// loop ends (or before the next fill-cluster round) and transitions the
// execution to failed("drained").
func (e *Engine) ScaleDown(id string, count int, ids []string) ([]*types.Worker, error) {
	rs, ok := e.lookupRunState(id)
	if !ok {
		return nil, fmt.Errorf("execution %s is not running in this engine", id)
	}
	removed := rs.scaleDown(count, ids)
	for _, w := range removed {
		e.publishWorker(w.ID, eventbus.EventExecutionStop, eventbus.ExecutionStopPayload{Reason: "scaled down"})
	}
	return removed, nil
}

func (e *Engine) publishBroadcast(executionID string, eventType eventbus.EventType, payload any) {
	if e.bus == nil {
		return
	}
	env, err := newEnvelope(eventType, "execution-engine", "", executionID, payload)
	if err != nil {
		engineLog.Warn().Err(err).Msg("failed to marshal control envelope")
		return
	}
	e.bus.Publish(eventbus.TopicBroadcast, env)
}

func (e *Engine) publishWorker(workerID string, eventType eventbus.EventType, payload any) {
	if e.bus == nil {
		return
	}
	env, err := newEnvelope(eventType, "execution-engine", workerID, "", payload)
	if err != nil {
		engineLog.Warn().Err(err).Msg("failed to marshal control envelope")
		return
	}
	e.bus.Publish(eventbus.WorkerTopic(workerID), env)
}
