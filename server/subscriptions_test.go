package server

import (
	"sort"
	"sync"
	"testing"
)

func TestSubscriptionTable_Subscribe(t *testing.T) {
	t.Run("records membership", func(t *testing.T) {
		table := newSubscriptionTable()

		if !table.subscribe("conn-1", "file:///config.json") {
			t.Error("expected first subscribe to report a new membership")
		}
		if !table.isSubscribed("conn-1", "file:///config.json") {
			t.Error("expected conn-1 to be subscribed")
		}
		if !table.hasSubscribers("file:///config.json") {
			t.Error("expected URI to have subscribers")
		}
	})

	t.Run("repeat subscribe is idempotent", func(t *testing.T) {
		table := newSubscriptionTable()

		table.subscribe("conn-1", "file:///config.json")
		if table.subscribe("conn-1", "file:///config.json") {
			t.Error("expected repeat subscribe to report an existing membership")
		}

		if got := len(table.subscribers("file:///config.json")); got != 1 {
			t.Errorf("subscribers = %d, want 1", got)
		}
	})

	t.Run("tracks multiple subscribers per URI", func(t *testing.T) {
		table := newSubscriptionTable()

		table.subscribe("conn-1", "file:///config.json")
		table.subscribe("conn-2", "file:///config.json")
		table.subscribe("conn-3", "file:///data.json")

		subscribers := table.subscribers("file:///config.json")
		sort.Strings(subscribers)
		if len(subscribers) != 2 || subscribers[0] != "conn-1" || subscribers[1] != "conn-2" {
			t.Errorf("subscribers = %v, want [conn-1 conn-2]", subscribers)
		}
	})
}

func TestSubscriptionTable_Unsubscribe(t *testing.T) {
	t.Run("removes membership", func(t *testing.T) {
		table := newSubscriptionTable()
		table.subscribe("conn-1", "file:///config.json")

		if !table.unsubscribe("conn-1", "file:///config.json") {
			t.Error("expected unsubscribe to report a removed membership")
		}
		if table.isSubscribed("conn-1", "file:///config.json") {
			t.Error("expected membership to be gone")
		}
		if table.hasSubscribers("file:///config.json") {
			t.Error("expected URI to have no subscribers")
		}
	})

	t.Run("unknown membership is a no-op", func(t *testing.T) {
		table := newSubscriptionTable()

		if table.unsubscribe("conn-1", "file:///config.json") {
			t.Error("expected unsubscribe of unknown membership to report false")
		}
	})

	t.Run("leaves other subscribers in place", func(t *testing.T) {
		table := newSubscriptionTable()
		table.subscribe("conn-1", "file:///config.json")
		table.subscribe("conn-2", "file:///config.json")

		table.unsubscribe("conn-1", "file:///config.json")

		if table.isSubscribed("conn-1", "file:///config.json") {
			t.Error("expected conn-1 membership to be gone")
		}
		if !table.isSubscribed("conn-2", "file:///config.json") {
			t.Error("expected conn-2 membership to remain")
		}
	})
}

func TestSubscriptionTable_DropConn(t *testing.T) {
	table := newSubscriptionTable()
	table.subscribe("conn-1", "file:///config.json")
	table.subscribe("conn-1", "file:///data.json")
	table.subscribe("conn-2", "file:///config.json")

	uris := table.dropConn("conn-1")
	sort.Strings(uris)

	if len(uris) != 2 || uris[0] != "file:///config.json" || uris[1] != "file:///data.json" {
		t.Errorf("dropConn = %v, want both URIs", uris)
	}
	if table.isSubscribed("conn-1", "file:///config.json") {
		t.Error("expected conn-1 memberships to be gone")
	}
	if !table.isSubscribed("conn-2", "file:///config.json") {
		t.Error("expected conn-2 membership to remain")
	}

	if got := table.dropConn("conn-1"); len(got) != 0 {
		t.Errorf("second dropConn = %v, want empty", got)
	}
}

func TestSubscriptionTable_Concurrency(t *testing.T) {
	table := newSubscriptionTable()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				table.subscribe(connID, "file:///shared")
				table.subscribers("file:///shared")
				table.isSubscribed(connID, "file:///shared")
				table.unsubscribe(connID, "file:///shared")
			}
		}(i)
	}

	wg.Wait()

	if table.hasSubscribers("file:///shared") {
		t.Error("expected no subscribers after balanced subscribe/unsubscribe")
	}
}
