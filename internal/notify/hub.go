// Package notify publishes local-store mutations as live queries.
//
// A Hub receives table-scoped change events from the store and re-runs
// every matching subscribed query, emitting the fresh result to the
// subscriber's channel. Subscribers that lag see the latest result only;
// intermediate results are dropped.
//
// The channel fanout and shutdown handshake follow the same shape as the
// daemon's event pipeline: a buffered trigger per subscription, a done
// channel, and a WaitGroup joined on Close.
package notify

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Table names a store table a query depends on.
type Table string

const (
	TableAccounts   Table = "accounts"
	TableBoards     Table = "boards"
	TableStacks     Table = "stacks"
	TableCards      Table = "cards"
	TableLabels     Table = "labels"
	TableUsers      Table = "users"
	TableCardUsers  Table = "card_users"
	TableCardLabels Table = "card_labels"
)

// Event describes a committed store write.
type Event struct {
	// AccountID scopes the write. Zero means the write is not scoped to
	// a single account (e.g. account creation) and matches everyone.
	AccountID int64

	// Tables lists every table touched by the write.
	Tables []Table
}

// Hub routes store change events to live-query subscriptions.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*registration
	closed bool
	logger *log.Logger
}

type registration struct {
	accountID int64
	tables    map[Table]struct{}
	trigger   chan struct{}

	// events, when set, receives the raw change events instead of a
	// coalesced trigger.
	events chan Event
}

// NewHub creates a hub. If logger is nil, a stderr logger is used.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	return &Hub{
		subs:   make(map[uuid.UUID]*registration),
		logger: logger,
	}
}

// Publish fans a change event out to every matching subscription.
// It never blocks: a subscription that already has a pending trigger
// is not queued again (the query re-runs once over the latest state).
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, reg := range h.subs {
		if !reg.matches(ev) {
			continue
		}
		if reg.events != nil {
			select {
			case reg.events <- ev:
			default:
			}
			continue
		}
		select {
		case reg.trigger <- struct{}{}:
		default:
		}
	}
}

// Close tears down the hub. Subscriptions created before Close keep
// their final emitted value but receive no further emissions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (r *registration) matches(ev Event) bool {
	if r.accountID != 0 && ev.AccountID != 0 && r.accountID != ev.AccountID {
		return false
	}
	for _, t := range ev.Tables {
		if _, ok := r.tables[t]; ok {
			return true
		}
	}
	return false
}

func (h *Hub) register(accountID int64, tables []Table, events chan Event) (uuid.UUID, *registration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return uuid.Nil, nil, false
	}

	reg := &registration{
		accountID: accountID,
		tables:    make(map[Table]struct{}, len(tables)),
		trigger:   make(chan struct{}, 1),
		events:    events,
	}
	for _, t := range tables {
		reg.tables[t] = struct{}{}
	}

	id := uuid.New()
	h.subs[id] = reg
	return id, reg, true
}

func (h *Hub) unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Subscription is a live view over a store query. Results arrive on C;
// the subscriber must call Close when its lifetime ends, otherwise the
// query keeps re-running on every matching write.
type Subscription[T any] struct {
	// C carries query results. The initial result is emitted on
	// subscribe; a fresh result follows every matching committed write.
	// C is closed by Close.
	C <-chan T

	id        uuid.UUID
	hub       *Hub
	out       chan T
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Close cancels the subscription and closes C. Safe to call more than
// once.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		s.hub.unregister(s.id)
		close(s.done)
		s.wg.Wait()
		close(s.out)
	})
}

// Observe subscribes a query to the hub. run is executed once
// immediately and again after every committed write touching one of
// tables for the given account (accountID 0 observes all accounts).
// Query errors are logged and skipped; the subscription stays live.
func Observe[T any](h *Hub, accountID int64, tables []Table, run func(context.Context) (T, error)) *Subscription[T] {
	id, reg, ok := h.register(accountID, tables, nil)

	sub := &Subscription[T]{
		id:   id,
		hub:  h,
		out:  make(chan T, 1),
		done: make(chan struct{}),
	}
	sub.C = sub.out

	if !ok {
		sub.closeOnce.Do(func() {
			close(sub.done)
			close(sub.out)
		})
		return sub
	}

	// Seed the first emission.
	reg.trigger <- struct{}{}

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for {
			select {
			case <-sub.done:
				return
			case <-reg.trigger:
				v, err := run(context.Background())
				if err != nil {
					h.logger.Printf("live query failed: %v", err)
					continue
				}
				sub.emit(v)
			}
		}
	}()

	return sub
}

// Events subscribes to the raw change events themselves, without an
// attached query. Unlike Observe, matching events are delivered as-is;
// a subscriber that stops draining loses events rather than blocking
// Publish. The subscription must be Closed when its lifetime ends.
func (h *Hub) Events(accountID int64, tables []Table) *Subscription[Event] {
	out := make(chan Event, 16)
	id, _, ok := h.register(accountID, tables, out)

	sub := &Subscription[Event]{
		id:   id,
		hub:  h,
		out:  out,
		done: make(chan struct{}),
	}
	sub.C = out

	if !ok {
		sub.closeOnce.Do(func() {
			close(sub.done)
			close(sub.out)
		})
	}
	return sub
}

// emit delivers v with latest-wins semantics: if the subscriber has not
// drained the previous result, it is replaced.
func (s *Subscription[T]) emit(v T) {
	for {
		select {
		case <-s.done:
			return
		case s.out <- v:
			return
		default:
		}
		// Drop the stale value, then retry the send.
		select {
		case <-s.out:
		default:
		}
	}
}
