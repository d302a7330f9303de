package notify

import (
	"context"
	"testing"
	"time"
)

func recv[T any](t *testing.T, c <-chan T) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
		panic("unreachable")
	}
}

func TestObserve_EmitsInitialResult(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	sub := Observe(h, 1, []Table{TableBoards}, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	defer sub.Close()

	if got := recv(t, sub.C); got != 7 {
		t.Errorf("initial emission = %d, want 7", got)
	}
}

func TestObserve_ReRunsOnMatchingPublish(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	n := 0
	sub := Observe(h, 1, []Table{TableCards}, func(ctx context.Context) (int, error) {
		n++
		return n, nil
	})
	defer sub.Close()

	recv(t, sub.C)

	h.Publish(Event{AccountID: 1, Tables: []Table{TableCards}})
	if got := recv(t, sub.C); got != 2 {
		t.Errorf("emission after publish = %d, want 2", got)
	}
}

func TestObserve_IgnoresOtherTablesAndAccounts(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	sub := Observe(h, 1, []Table{TableCards}, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	defer sub.Close()
	recv(t, sub.C)

	h.Publish(Event{AccountID: 1, Tables: []Table{TableBoards}})
	h.Publish(Event{AccountID: 2, Tables: []Table{TableCards}})

	select {
	case v, ok := <-sub.C:
		if ok {
			t.Errorf("unexpected emission %v for non-matching events", v)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestObserve_WildcardAccountSeesEverything(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	sub := Observe(h, 0, []Table{TableCards}, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	defer sub.Close()
	recv(t, sub.C)

	h.Publish(Event{AccountID: 42, Tables: []Table{TableCards}})
	recv(t, sub.C)
}

func TestSubscription_LatestWins(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	n := 0
	sub := Observe(h, 1, []Table{TableCards}, func(ctx context.Context) (int, error) {
		n++
		return n, nil
	})
	defer sub.Close()

	// Let the seed emission land, then leave it undrained while more
	// publishes arrive; the pending value must be replaced, not queued.
	time.Sleep(50 * time.Millisecond)
	h.Publish(Event{AccountID: 1, Tables: []Table{TableCards}})
	time.Sleep(50 * time.Millisecond)

	got := recv(t, sub.C)
	if got != 2 {
		t.Errorf("got stale result %d, want the latest (2)", got)
	}
}

func TestSubscription_CloseStopsEmissions(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	sub := Observe(h, 1, []Table{TableCards}, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	recv(t, sub.C)
	sub.Close()

	h.Publish(Event{AccountID: 1, Tables: []Table{TableCards}})

	if _, ok := <-sub.C; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestEvents_DeliversRawChangeEvents(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	sub := h.Events(1, []Table{TableCards, TableStacks})
	defer sub.Close()

	h.Publish(Event{AccountID: 1, Tables: []Table{TableCards, TableCardLabels}})
	ev := recv(t, sub.C)
	if ev.AccountID != 1 || len(ev.Tables) != 2 {
		t.Errorf("event = %+v, want the published event unchanged", ev)
	}

	h.Publish(Event{AccountID: 2, Tables: []Table{TableCards}})
	h.Publish(Event{AccountID: 1, Tables: []Table{TableBoards}})
	select {
	case ev := <-sub.C:
		t.Errorf("unexpected event %+v for non-matching publishes", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEvents_AfterHubClose(t *testing.T) {
	h := NewHub(nil)
	h.Close()

	sub := h.Events(0, []Table{TableBoards})
	if _, ok := <-sub.C; ok {
		t.Error("event stream on closed hub should be closed immediately")
	}
	sub.Close()
	sub.Close()
}

func TestObserve_AfterHubClose(t *testing.T) {
	h := NewHub(nil)
	h.Close()

	sub := Observe(h, 1, []Table{TableCards}, func(ctx context.Context) (int, error) {
		t.Error("query must not run on a closed hub")
		return 0, nil
	})
	if _, ok := <-sub.C; ok {
		t.Error("subscription on closed hub should be closed immediately")
	}

	// Close stays safe even though the hub already closed the channel.
	sub.Close()
	sub.Close()
}
