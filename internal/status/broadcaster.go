// Package status fans service-status snapshots out to connected clients.
// The snapshot store remains the single source of truth; the broadcaster
// only accelerates delivery, and pollers reading the store see the same
// state as websocket subscribers.
package status

import (
	"sync"

	"medianest/backend/internal/resilience"
)

const subscriberBuffer = 16

// Broadcaster delivers snapshot updates to subscribers, partitioned by
// service name. Slow subscribers have updates dropped rather than blocking
// the publisher; they resync from the store on their next read.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription is one subscriber's feed. A nil topic set selects every
// service; Select narrows it to the named ones.
type Subscription struct {
	b      *Broadcaster
	ch     chan resilience.Snapshot
	topics map[string]struct{}
	once   sync.Once
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[*Subscription]struct{}{}}
}

// Subscribe registers a new subscriber. With no services named the feed
// carries every update. Cancel must be called when the subscriber goes away.
func (b *Broadcaster) Subscribe(services ...string) *Subscription {
	sub := &Subscription{
		b:      b,
		ch:     make(chan resilience.Snapshot, subscriberBuffer),
		topics: topicSet(services),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish sends a snapshot to every subscriber whose topic set includes its
// service, without blocking.
func (b *Broadcaster) Publish(snap resilience.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.topics != nil {
			if _, want := sub.topics[snap.ServiceName]; !want {
				continue
			}
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Updates is the subscription's feed. It is closed by Cancel.
func (s *Subscription) Updates() <-chan resilience.Snapshot { return s.ch }

// Select replaces the subscription's topic set. An empty call widens the
// feed back to every service.
func (s *Subscription) Select(services ...string) {
	s.b.mu.Lock()
	s.topics = topicSet(services)
	s.b.mu.Unlock()
}

// Cancel removes the subscription and closes its channel. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		s.b.mu.Unlock()
		close(s.ch)
	})
}

func topicSet(services []string) map[string]struct{} {
	if len(services) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(services))
	for _, name := range services {
		if name != "" {
			set[name] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
