// Package events is the process-local publish/subscribe hub that fans
// out task outcomes to connected clients. The hub is an explicit
// instance created at process start and injected where needed; there is
// no package-level default.
package events

import (
	"sync"

	"reelmint/internal/domain"
)

// TaskEvent announces a terminal transition of one task.
type TaskEvent struct {
	UserID        string              `json:"-"`
	TaskID        string              `json:"task_id"`
	Status        domain.TaskStatus   `json:"status"`
	Outputs       []domain.TaskOutput `json:"outputs,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

type subscriber struct {
	id int
	ch chan TaskEvent
}

// Hub delivers events at most once per subscriber, keyed by user id.
// Publish never blocks: a subscriber that is not draining its channel
// misses the event and learns the outcome via the refresh path instead.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscriber)}
}

// Subscribe registers a channel for the user's events. The returned
// cancel func removes the subscription and closes the channel; it is
// safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan TaskEvent, func()) {
	ch := make(chan TaskEvent, 16)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[userID] = append(h.subs[userID], subscriber{id: id, ch: ch})
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			list := h.subs[userID]
			for i, s := range list {
				if s.id == id {
					h.subs[userID] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish fans the event out to all subscribers of its user.
func (h *Hub) Publish(ev TaskEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs[ev.UserID] {
		select {
		case s.ch <- ev:
		default:
			// subscriber not reading, drop
		}
	}
}

// SubscriberCount reports the live subscriptions for a user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
