package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe(TopicBroadcast)
	defer b.Unsubscribe(TopicBroadcast, sub)

	b.Publish(TopicBroadcast, &Envelope{Type: EventExecutionStart, Source: "test"})

	select {
	case env := <-sub:
		assert.Equal(t, EventExecutionStart, env.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBus_PublishOnlyReachesMatchingTopic(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	subA := b.Subscribe("topic-a")
	subB := b.Subscribe("topic-b")
	defer b.Unsubscribe("topic-a", subA)
	defer b.Unsubscribe("topic-b", subB)

	b.Publish("topic-a", &Envelope{Type: EventMetricsReport})

	select {
	case <-subA:
	case <-time.After(time.Second):
		t.Fatal("expected delivery on topic-a")
	}

	select {
	case <-subB:
		t.Fatal("topic-b should not have received an event published to topic-a")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe(TopicManager)
	b.Unsubscribe(TopicManager, sub)

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestBus_SubscriberCount(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	assert.Equal(t, 0, b.SubscriberCount(TopicBroadcast))

	sub := b.Subscribe(TopicBroadcast)
	assert.Equal(t, 1, b.SubscriberCount(TopicBroadcast))

	b.Unsubscribe(TopicBroadcast, sub)
	assert.Equal(t, 0, b.SubscriberCount(TopicBroadcast))
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe(TopicBroadcast)
	defer b.Unsubscribe(TopicBroadcast, sub)

	// Fill the subscriber's buffer without ever draining it, then
	// confirm a further publish still returns promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(TopicBroadcast, &Envelope{Type: EventAgentHeartbeat})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestWorkerTopic(t *testing.T) {
	assert.Equal(t, "ctrl:workers:w1", WorkerTopic("w1"))
}

func TestMetricsTopic(t *testing.T) {
	assert.Equal(t, "metrics:e1", MetricsTopic("e1"))
}

func TestBus_Subscribe_ReturnsDistinctChannelsPerCall(t *testing.T) {
	b := New()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe(TopicBroadcast)
	sub2 := b.Subscribe(TopicBroadcast)
	defer b.Unsubscribe(TopicBroadcast, sub1)
	defer b.Unsubscribe(TopicBroadcast, sub2)

	require.Equal(t, 2, b.SubscriberCount(TopicBroadcast))
	assert.NotEqual(t, sub1, sub2)
}
