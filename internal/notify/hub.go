// Package notify is the best-effort notification bus: an in-memory topic
// registry keyed by session id, with an optional NATS leg so every instance
// of the service sees every event. Delivery is fire-and-forget, with no replay
// and no acknowledgment; a subscriber that misses an event recovers by
// re-reading session state.
package notify

import (
	"context"
	"sync"

	"voting_api_gateway/internal/messaging"
	"voting_api_gateway/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing events, which the protocol tolerates.
const subscriberBuffer = 8

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan model.Event]struct{}
	closed      bool

	origin string
	nats   messaging.NATSClient
	logger *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]map[chan model.Event]struct{}),
		origin:      uuid.New().String(),
		logger:      logger,
	}
}

// AttachNATS mirrors every local publish to NATS and feeds events published
// by other instances into the local registry. Events carrying this instance's
// origin are dropped on the way back in.
func (b *Bus) AttachNATS(ctx context.Context, client messaging.NATSClient) error {
	b.mu.Lock()
	b.nats = client
	b.mu.Unlock()

	return client.SubscribeSessionEvents(ctx, func(event *model.Event) {
		if event.Origin == b.origin {
			return
		}
		b.deliver(*event)
	})
}

// Publish fans the event out to local subscribers of its session and, when a
// NATS client is attached, to other instances. It never blocks on a slow
// subscriber and a NATS failure never surfaces to the caller.
func (b *Bus) Publish(ctx context.Context, event model.Event) {
	event.Origin = b.origin
	b.deliver(event)

	b.mu.RLock()
	client := b.nats
	b.mu.RUnlock()
	if client == nil {
		return
	}
	if err := client.PublishSessionEvent(ctx, &event); err != nil {
		b.logger.Warn("failed to mirror event to NATS", zap.Error(err),
			zap.String("session_id", event.SessionID), zap.String("type", string(event.Type)))
	}
}

func (b *Bus) deliver(event model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full: drop the event rather than block the
			// operation that triggered it.
		}
	}
}

// Subscribe registers interest in a session id. The returned cancel func
// removes the subscription and closes the channel; it is safe to call more
// than once.
func (b *Bus) Subscribe(sessionID string) (<-chan model.Event, func()) {
	ch := make(chan model.Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = make(map[chan model.Event]struct{})
	}
	b.subscribers[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subscribers[sessionID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subscribers, sessionID)
				}
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close tears down every subscription. Publishes after Close are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sessionID, subs := range b.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, sessionID)
	}
}
