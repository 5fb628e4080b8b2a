package app

import (
	"sync"
	"time"
)

// SyncNotice tells an owner's connected devices that server state changed and
// a pull is worthwhile. It is advisory only; the sync protocol stays pull-based.
type SyncNotice struct {
	OwnerID    string    `json:"owner_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	NoticePushApplied    = "push_applied"
	NoticeSessionUpdated = "session_updated"
)

// Hub fans sync notices out to an owner's subscribed devices. Scoped to the
// service instance and injected explicitly; there is no global state.
type Hub struct {
	now func() time.Time

	mu          sync.RWMutex
	subscribers map[string]map[chan SyncNotice]struct{}
}

func NewHub() *Hub {
	return &Hub{
		now:         time.Now,
		subscribers: make(map[string]map[chan SyncNotice]struct{}),
	}
}

// Subscribe registers a listener for one owner's notices. The caller must
// invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(owner string) (<-chan SyncNotice, func()) {
	ch := make(chan SyncNotice, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[owner]
	if !ok {
		subs = make(map[chan SyncNotice]struct{})
		h.subscribers[owner] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[owner]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, owner)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a notice to every subscriber of owner without blocking.
// A slow listener has its oldest pending notice dropped; devices only need
// the latest "something changed" signal.
func (h *Hub) Publish(owner, reason string) {
	notice := SyncNotice{OwnerID: owner, Reason: reason, OccurredAt: h.now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[owner] {
		select {
		case ch <- notice:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- notice:
			default:
			}
		}
	}
}
