// Package sync implements the pull-merge-push reconciliation engine
// between the local store and the remote board server.
//
// The engine is constructed once per process and injected into callers.
// Local mutations are optimistic: they commit to the store immediately,
// flag the row as locally edited or deleted, and return; remote I/O
// only happens inside Synchronize. Per account, at most one
// synchronization runs at a time; concurrent requests coalesce onto
// the in-flight run and every callback receives its result.
//
// Scope traversal is strictly ordered by foreign-key dependency
// (account, then boards, then labels and stacks, then cards, then card
// relations); sibling boards are pulled concurrently up to a limit.
package sync

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/remote"
	"github.com/deckhand/deckhand/internal/store"
)

// GatewayFactory builds the remote gateway for an account. The engine
// resolves the gateway lazily so credentials can live outside the
// store.
type GatewayFactory func(a *model.Account) remote.API

// Config holds engine tuning knobs.
type Config struct {
	// Workers is the size of the background pool executing engine
	// operations off the caller's goroutine.
	Workers int

	// SiblingLimit caps how many sibling board scopes are pulled
	// concurrently within one synchronization.
	SiblingLimit int

	// Logger for engine activity.
	Logger *log.Logger

	// Clock is the time source; overridable in tests.
	Clock func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:      4,
		SiblingLimit: 4,
		Logger:       log.New(os.Stderr, "[sync] ", log.LstdFlags),
		Clock:        time.Now,
	}
}

// Engine coordinates the local store and the remote gateway.
type Engine struct {
	store   *store.Store
	gateway GatewayFactory
	logger  *log.Logger
	clock   func() time.Time
	limit   int

	jobs    chan func()
	wg      sync.WaitGroup
	sending sync.WaitGroup

	mu       sync.Mutex
	inflight map[int64][]func(error)
	closed   bool
}

// New creates the engine and starts its worker pool. The caller must
// Close the engine to release the workers.
func New(st *store.Store, gateway GatewayFactory, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SiblingLimit <= 0 {
		cfg.SiblingLimit = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	e := &Engine{
		store:    st,
		gateway:  gateway,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		limit:    cfg.SiblingLimit,
		jobs:     make(chan func(), 64),
		inflight: make(map[int64][]func(error)),
	}

	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer e.wg.Done()
			for job := range e.jobs {
				job()
			}
		}()
	}

	return e
}

// Close drains the worker pool. Pending jobs still run; new submissions
// are rejected.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.sending.Wait()
	close(e.jobs)
	e.wg.Wait()
}

// submit queues a job on the worker pool. Returns false after Close.
// The send happens outside the mutex: a full job buffer must never
// block workers that need the lock to finish their current job.
func (e *Engine) submit(job func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.sending.Add(1)
	e.mu.Unlock()

	e.jobs <- job
	e.sending.Done()
	return true
}

// Synchronize runs a full reconciliation pass for one account and
// reports the result through done (which may be nil). If a pass for the
// same account is already in flight, the request coalesces onto it:
// done fires with the in-flight pass's result and no second pass runs.
func (e *Engine) Synchronize(ctx context.Context, accountID int64, done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		done(ErrClosed)
		return
	}
	if cbs, ok := e.inflight[accountID]; ok {
		e.inflight[accountID] = append(cbs, done)
		e.mu.Unlock()
		return
	}
	e.inflight[accountID] = []func(error){done}
	e.sending.Add(1)
	e.mu.Unlock()

	e.jobs <- func() {
		err := e.syncAccount(ctx, accountID)

		e.mu.Lock()
		cbs := e.inflight[accountID]
		delete(e.inflight, accountID)
		e.mu.Unlock()

		for _, cb := range cbs {
			cb(err)
		}
	}
	e.sending.Done()
}

// syncAccount performs one pull-merge-push cycle.
//
// The watermark advances to the pull's start time, and only after the
// whole pull completed without transport failure: a push failure never
// blocks the watermark, a pull failure always does.
func (e *Engine) syncAccount(ctx context.Context, accountID int64) error {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	api := e.gateway(account)

	// First sync of an account verifies the server speaks a supported
	// API version.
	if account.LastSync.IsZero() {
		caps, err := api.Capabilities(ctx)
		if err != nil {
			return err
		}
		if err := remote.CheckVersion(caps.Version); err != nil {
			return err
		}
	}

	start := e.clock()
	e.logger.Printf("sync account %d: pull since %v", accountID, account.LastSync)

	if err := e.pullAccount(ctx, api, account); err != nil {
		e.logger.Printf("sync account %d: pull failed: %v", accountID, err)
		return err
	}

	if err := e.store.SetLastSync(ctx, accountID, start); err != nil {
		return err
	}

	if err := e.pushAccount(ctx, api, account); err != nil {
		e.logger.Printf("sync account %d: push failed: %v", accountID, err)
		return err
	}

	e.logger.Printf("sync account %d: complete", accountID)
	return nil
}
