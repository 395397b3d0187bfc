package notifier

import (
	"sync"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/internal/telemetry"
)

// Event is a single item pushed to an SSE subscriber's queue.
type Event struct {
	Type string
	Data any
}

const subscriberQueueSize = 16

// subscriber is one open SSE connection's delivery queue.
type subscriber struct {
	id    uint64
	queue chan Event
}

// Registry is the in-process SSE client registry. It assumes a single API
// replica — fanout across replicas would need a pub/sub topic keyed by
// user ID instead, per the notifier's single-process design note.
type Registry struct {
	mu     sync.Mutex
	byUser map[uuid.UUID][]*subscriber
	nextID uint64
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[uuid.UUID][]*subscriber)}
}

// Register opens a new bounded queue for userID and returns it along with
// an unregister function. unregister is idempotent and safe to call
// concurrently with Broadcast.
func (r *Registry) Register(userID uuid.UUID) (queue <-chan Event, unregister func()) {
	r.mu.Lock()
	r.nextID++
	sub := &subscriber{id: r.nextID, queue: make(chan Event, subscriberQueueSize)}
	r.byUser[userID] = append(r.byUser[userID], sub)
	r.mu.Unlock()

	telemetry.SSEClientsConnected.Inc()

	var once sync.Once
	unregister = func() {
		once.Do(func() {
			r.mu.Lock()
			subs := r.byUser[userID]
			for i, s := range subs {
				if s.id == sub.id {
					r.byUser[userID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(r.byUser[userID]) == 0 {
				delete(r.byUser, userID)
			}
			r.mu.Unlock()
			telemetry.SSEClientsConnected.Dec()
		})
	}

	return sub.queue, unregister
}

// Broadcast snapshots userID's subscriber list under a short lock, then
// delivers ev to each queue without blocking: a full queue drops the event
// with a warning rather than stall the publisher.
func (r *Registry) Broadcast(userID uuid.UUID, ev Event, onDrop func()) {
	r.mu.Lock()
	subs := append([]*subscriber(nil), r.byUser[userID]...)
	r.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.queue <- ev:
		default:
			if onDrop != nil {
				onDrop()
			}
		}
	}
}
