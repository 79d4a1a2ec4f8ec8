// Package poke delivers "something changed" signals to a user's connected
// clients.
//
// A poke carries no data. A client that receives one pulls. Pokes for a
// subscriber that has not consumed the previous one are coalesced, so a slow
// client never blocks a publisher and never sees more than one outstanding
// poke.
package poke

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/notesync/notesync/pkg/logger"
	"github.com/notesync/notesync/pkg/models"
)

// ErrClosed is returned by Notify on a closed Hub.
var ErrClosed = errors.New("poke hub is closed")

// Hub routes pokes to per-user subscribers. It is safe for concurrent use.
type Hub struct {
	// subs maps user -> subscription id -> subscription
	subs   map[models.UserID]map[string]*Subscription
	subsMu sync.RWMutex
	closed bool

	logger logger.Logger
}

// Subscription receives pokes for one user on C until it is closed.
type Subscription struct {
	// C has a buffer of one. It is closed when the subscription or the hub
	// is closed.
	C <-chan struct{}

	id     string
	userID models.UserID
	ch     chan struct{}
	hub    *Hub
	once   sync.Once
}

// NewHub creates an empty Hub. A nil logger discards output.
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		subs:   make(map[models.UserID]map[string]*Subscription),
		logger: log,
	}
}

// Subscribe registers a new subscriber for userID. The caller must Close the
// subscription when done. Subscribing on a closed hub returns a subscription
// whose channel is already closed.
func (h *Hub) Subscribe(userID models.UserID) *Subscription {
	ch := make(chan struct{}, 1)
	s := &Subscription{
		C:      ch,
		id:     uuid.NewString(),
		userID: userID,
		ch:     ch,
		hub:    h,
	}

	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	if h.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	byID, ok := h.subs[userID]
	if !ok {
		byID = make(map[string]*Subscription)
		h.subs[userID] = byID
	}
	byID[s.id] = s
	h.logger.Debug("Subscribed", "user_id", userID, "subscription_id", s.id, "subscribers", len(byID))
	return s
}

// SubscribeContext is Subscribe with the subscription closed when ctx is
// done.
func (h *Hub) SubscribeContext(ctx context.Context, userID models.UserID) *Subscription {
	s := h.Subscribe(userID)
	context.AfterFunc(ctx, s.Close)
	return s
}

// Close unregisters the subscription and closes C. It is idempotent.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (h *Hub) remove(s *Subscription) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	if byID, ok := h.subs[s.userID]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(h.subs, s.userID)
		}
	}
	s.once.Do(func() { close(s.ch) })
	h.logger.Debug("Unsubscribed", "user_id", s.userID, "subscription_id", s.id)
}

// Publish pokes every subscriber of userID without blocking and returns how
// many subscribers were registered.
func (h *Hub) Publish(userID models.UserID) int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()

	byID := h.subs[userID]
	for _, s := range byID {
		select {
		case s.ch <- struct{}{}:
		default:
			// A poke is already pending for this subscriber.
		}
	}
	return len(byID)
}

// Notify publishes a poke for userID. It lets a Hub serve as the engine's
// notifier.
func (h *Hub) Notify(ctx context.Context, userID models.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.subsMu.RLock()
	closed := h.closed
	h.subsMu.RUnlock()
	if closed {
		return ErrClosed
	}

	n := h.Publish(userID)
	h.logger.Debug("Poked", "user_id", userID, "subscribers", n)
	return nil
}

// Len returns the number of subscribers for userID.
func (h *Hub) Len(userID models.UserID) int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	return len(h.subs[userID])
}

// Close closes every subscription. Later subscriptions are closed on
// creation and Notify fails with ErrClosed.
func (h *Hub) Close() {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for userID, byID := range h.subs {
		for _, s := range byID {
			s.once.Do(func() { close(s.ch) })
		}
		delete(h.subs, userID)
	}
	h.logger.Debug("Poke hub closed")
}
