package service

import (
	"sync"

	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/metrics"
	"github.com/tax-ledger/internal/models"
)

// subscriberBuffer is how many events a slow subscriber may fall behind
// before further events to it are dropped
const subscriberBuffer = 64

// Subscription receives newly recorded events for one subject
type Subscription struct {
	Subject string
	Events  <-chan models.LedgerEvent

	ch     chan models.LedgerEvent
	closed bool
}

// EventBroadcaster fans recorded events out to live subscribers by subject.
// Publishing never blocks the append path.
type EventBroadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *logging.Logger
}

// NewEventBroadcaster creates an empty broadcaster
func NewEventBroadcaster(logger *logging.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger.WithComponent("broadcaster"),
	}
}

// Subscribe registers interest in subject. Callers must Unsubscribe when done.
func (b *EventBroadcaster) Subscribe(subject string) *Subscription {
	subject = models.NormalizeSubject(subject)
	ch := make(chan models.LedgerEvent, subscriberBuffer)
	sub := &Subscription{Subject: subject, Events: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[*Subscription]struct{})
	}
	b.subs[subject][sub] = struct{}{}
	metrics.StreamClients.Inc()

	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (b *EventBroadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true

	if set, ok := b.subs[sub.Subject]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.Subject)
		}
	}
	close(sub.ch)
	metrics.StreamClients.Dec()
}

// Publish delivers ev to every subscriber of its subject
func (b *EventBroadcaster) Publish(ev models.LedgerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[ev.Subject] {
		select {
		case sub.ch <- ev.Clone():
		default:
			b.logger.WithFields(map[string]interface{}{
				"subject": ev.Subject,
				"eventId": ev.ID,
			}).Warn("subscriber buffer full, dropping event")
		}
	}
}

// Subscribers returns the number of live subscriptions for subject
func (b *EventBroadcaster) Subscribers(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[models.NormalizeSubject(subject)])
}
