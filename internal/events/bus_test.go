package events

import (
	"testing"
	"time"

	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedEvent(jobID string) Event {
	return Event{
		Topic:        TopicArtifactCompleted,
		JobID:        jobID,
		UserID:       "user-1",
		ArtifactType: models.ArtifactQuiz,
		Timestamp:    time.Now().UTC(),
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicArtifactCompleted)
	defer sub.Close()

	bus.Publish(completedEvent("job-1"))

	select {
	case ev := <-sub.C:
		assert.Equal(t, "job-1", ev.JobID)
		assert.Equal(t, TopicArtifactCompleted, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscribeMultipleTopics(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicArtifactCompleted, TopicArtifactFailed)
	defer sub.Close()

	bus.Publish(completedEvent("job-1"))
	bus.Publish(Event{Topic: TopicArtifactFailed, JobID: "job-2", UserID: "user-1"})

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.C:
			got[ev.JobID] = true
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.True(t, got["job-1"])
	assert.True(t, got["job-2"])
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not panic or block.
	bus.Publish(completedEvent("job-1"))
	assert.Equal(t, int64(0), bus.Dropped())
}

func TestClosedSubscriptionStopsDelivery(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicArtifactCompleted)
	sub.Close()
	sub.Close() // idempotent

	bus.Publish(completedEvent("job-1"))

	_, open := <-sub.C
	assert.False(t, open, "channel should be closed")
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicArtifactCompleted)
	defer sub.Close()

	// Overflow the subscriber buffer without draining it.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			bus.Publish(completedEvent("job-overflow"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	require.Greater(t, bus.Dropped(), int64(0))
}

func TestSubscribersAreIndependent(t *testing.T) {
	bus := NewBus()
	fast := bus.Subscribe(TopicArtifactCompleted)
	defer fast.Close()
	slow := bus.Subscribe(TopicArtifactCompleted)
	defer slow.Close()

	// Fill the slow subscriber's buffer.
	for i := 0; i < subscriberBuffer+4; i++ {
		bus.Publish(completedEvent("job-n"))
	}

	// The fast subscriber still gets its buffered events.
	received := 0
	for {
		select {
		case <-fast.C:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}
