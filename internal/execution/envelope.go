package execution

import (
	"encoding/json"
	"time"

	"github.com/stormbench/orchestrator/internal/eventbus"
)

// newEnvelope marshals payload (which may be nil) into an eventbus
// Envelope addressed to target, or broadcast when target is empty.
func newEnvelope(eventType eventbus.EventType, source, target, executionID string, payload any) (*eventbus.Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &eventbus.Envelope{
		Type:        eventType,
		Timestamp:   time.Now(),
		Source:      source,
		Target:      target,
		ExecutionID: executionID,
		Payload:     raw,
	}, nil
}
