// Package eventbus implements the orchestrator's publish/subscribe
// channels: control events to workers and metric/status events from
// workers. It generalizes the single-channel broadcast broker pattern
// to topic-keyed routing, and is optional — the core degrades to
// direct-command mode when no Bus is wired in.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
)

// Well-known topics.
const (
	TopicManager   = "ctrl:manager"
	TopicBroadcast = "ctrl:broadcast"
)

// WorkerTopic returns the per-worker control topic for a worker id.
func WorkerTopic(workerID string) string {
	return "ctrl:workers:" + workerID
}

// MetricsTopic returns the per-execution metric-stream topic.
func MetricsTopic(executionID string) string {
	return "metrics:" + executionID
}

// EventType is a closed, dotted enum identifying an envelope's payload
// shape. Every EventType has exactly one corresponding payload struct;
// the core never carries a free-form payload.
type EventType string

const (
	EventAgentHeartbeat  EventType = "agent.heartbeat"
	EventAgentRegister   EventType = "agent.register"
	EventAgentStatus     EventType = "agent.status"
	EventAgentError      EventType = "agent.error"
	EventExecutionStart  EventType = "execution.start"
	EventExecutionStop   EventType = "execution.stop"
	EventExecutionPause  EventType = "execution.pause"
	EventExecutionResume EventType = "execution.resume"
	EventMetricsReport   EventType = "metrics.report"
)

// Envelope is the wire format for every event on the bus.
type Envelope struct {
	Type        EventType       `json:"type"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
	Target      string          `json:"target,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Subscriber is a channel of envelopes delivered to one subscription.
type Subscriber chan *Envelope

// Bus is an in-process, topic-keyed publish/subscribe broker. A
// buffered intake channel is drained by a single goroutine that
// delivers non-blockingly to subscribers of the matching topic; a
// full subscriber buffer drops the event rather than blocking the
// publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[Subscriber]bool

	intake chan topicEvent
	stopCh chan struct{}
}

type topicEvent struct {
	topic string
	event *Envelope
}

// New creates a Bus. Call Start to begin delivering events.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]map[Subscriber]bool),
		intake:      make(chan topicEvent, 256),
		stopCh:      make(chan struct{}),
	}
}

var busLog = log.WithComponent("eventbus")

// Start begins the delivery loop.
func (b *Bus) Start() {
	go b.run()
}

// Stop halts delivery and closes all subscriber channels.
func (b *Bus) Stop() {
	close(b.stopCh)

	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.subscribers {
		for sub := range subs {
			close(sub)
		}
		delete(b.subscribers, topic)
	}
}

// Subscribe returns a channel that receives every envelope published to
// topic from now on. The returned channel is buffered; a slow
// subscriber loses events rather than stalling publishers.
func (b *Bus) Subscribe(topic string) Subscriber {
	sub := make(Subscriber, 64)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[Subscriber]bool)
	}
	b.subscribers[topic][sub] = true
	return sub
}

// Unsubscribe removes sub from topic and closes it.
func (b *Bus) Unsubscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[topic]; ok {
		if _, present := subs[sub]; present {
			delete(subs, sub)
			close(sub)
		}
	}
}

// Publish enqueues event for delivery to topic's subscribers. Publish
// never blocks on a subscriber; at worst it blocks briefly on the
// bus's own intake queue.
func (b *Bus) Publish(topic string, event *Envelope) {
	select {
	case b.intake <- topicEvent{topic: topic, event: event}:
	case <-b.stopCh:
	}
}

func (b *Bus) run() {
	for {
		select {
		case te := <-b.intake:
			b.deliver(te.topic, te.event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) deliver(topic string, event *Envelope) {
	metrics.EventBusPublished.WithLabelValues(topic).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers[topic] {
		select {
		case sub <- event:
		default:
			metrics.EventBusDropped.WithLabelValues(topic).Inc()
			busLog.Warn().Str("topic", topic).Msg("subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount reports how many subscribers are registered on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
