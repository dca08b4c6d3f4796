package status

import (
	"testing"
	"time"

	"medianest/backend/internal/resilience"
)

func recvOne(t *testing.T, sub *Subscription) resilience.Snapshot {
	t.Helper()
	select {
	case snap := <-sub.Updates():
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return resilience.Snapshot{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case snap := <-sub.Updates():
		t.Fatalf("unexpected snapshot %+v", snap)
	default:
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Cancel()
	defer sub2.Cancel()

	b.Publish(resilience.Snapshot{ServiceName: "plex", Status: resilience.StatusDown})

	for i, sub := range []*Subscription{sub1, sub2} {
		got := recvOne(t, sub)
		if got.ServiceName != "plex" || got.Status != resilience.StatusDown {
			t.Fatalf("subscriber %d got %+v", i, got)
		}
	}
}

func TestSubscribeWithTopicsFiltersOtherServices(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("plex")
	defer sub.Cancel()

	b.Publish(resilience.Snapshot{ServiceName: "mediabroker", Status: resilience.StatusDown})
	b.Publish(resilience.Snapshot{ServiceName: "uptime", Status: resilience.StatusUp})
	b.Publish(resilience.Snapshot{ServiceName: "plex", Status: resilience.StatusUp})

	got := recvOne(t, sub)
	if got.ServiceName != "plex" {
		t.Fatalf("got update for %q, selected only plex", got.ServiceName)
	}
	assertEmpty(t, sub)
}

func TestSelectNarrowsAndWidensFeed(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Cancel()

	sub.Select("uptime")
	b.Publish(resilience.Snapshot{ServiceName: "plex"})
	assertEmpty(t, sub)

	b.Publish(resilience.Snapshot{ServiceName: "uptime"})
	if got := recvOne(t, sub); got.ServiceName != "uptime" {
		t.Fatalf("got %q, want uptime", got.ServiceName)
	}

	// Empty selection goes back to receiving everything.
	sub.Select()
	b.Publish(resilience.Snapshot{ServiceName: "plex"})
	if got := recvOne(t, sub); got.ServiceName != "plex" {
		t.Fatalf("got %q after widening, want plex", got.ServiceName)
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	sub.Cancel()
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d after cancel", b.Subscribers())
	}
	if _, open := <-sub.Updates(); open {
		t.Fatalf("channel still open after cancel")
	}
	// Second cancel is a no-op.
	sub.Cancel()
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Publish(resilience.Snapshot{ServiceName: "plex"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
