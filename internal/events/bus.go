// Package events provides the in-process pub/sub bus that fans job
// completion out to listening connections. Delivery is fire-and-forget:
// only handlers subscribed at publish time receive an event, nothing is
// persisted or redelivered, and cross-process delivery is explicitly out of
// scope (the streaming transport runs in the worker's process).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/studygen-go/internal/models"
)

// Topic names a published event type.
type Topic string

const (
	TopicArtifactCompleted Topic = "artifact.completed"
	TopicArtifactFailed    Topic = "artifact.failed"
)

// Event is the payload delivered to subscribers. Exactly one of Result and
// Error is set, matching the topic.
type Event struct {
	Topic        Topic               `json:"topic"`
	JobID        string              `json:"job_id"`
	UserID       string              `json:"user_id"`
	NotebookID   string              `json:"notebook_id"`
	ArtifactType models.ArtifactType `json:"artifact_type"`
	Timestamp    time.Time           `json:"timestamp"`
	Result       *models.Artifact    `json:"result,omitempty"`
	Error        *models.JobError    `json:"error,omitempty"`
}

const subscriberBuffer = 16

// Subscription is one subscriber's receive side. Close it when done;
// events arriving after Close are not delivered.
type Subscription struct {
	C      <-chan Event
	cancel func()
	once   sync.Once
}

// Close removes the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Bus is the in-process broadcast hub. The subscriber table is the only
// shared in-process mutable state between jobs.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Topic]map[int]chan Event
	nextID  int
	dropped atomic.Int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]chan Event)}
}

// Subscribe registers a subscriber for the given topics.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, topic := range topics {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[int]chan Event)
		}
		b.subs[topic][id] = ch
	}
	b.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			b.mu.Lock()
			for _, topic := range topics {
				delete(b.subs[topic], id)
			}
			b.mu.Unlock()
			close(ch)
		},
	}
}

// Publish delivers an event to every current subscriber of its topic.
// Publish never blocks: a subscriber whose buffer is full misses the event
// (delivery is best-effort by contract) and the drop is counted.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[ev.Topic] {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events not delivered due to full
// subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
