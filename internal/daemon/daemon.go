// Package daemon provides the background service that keeps local
// boards reconciled with their servers.
//
// The daemon:
// 1. Synchronizes every configured account on a fixed interval
// 2. Watches the config file and applies interval changes without restart
// 3. Feeds sync results and cache statistics to the dashboard
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/deckhand/deckhand/internal/dashboard"
	"github.com/deckhand/deckhand/internal/notify"
	"github.com/deckhand/deckhand/internal/store"
	"github.com/deckhand/deckhand/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often every account is synchronized
	SyncInterval time.Duration

	// DebounceInterval is how long to wait before reacting to config
	// file changes; editors fire several events per save
	DebounceInterval time.Duration

	// ConfigPath is the config file to watch for interval changes.
	// Empty disables the watch.
	ConfigPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates periodic synchronization and config watching.
type Daemon struct {
	store  *store.Store
	engine *sync.Engine
	dash   *dashboard.Server
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu gosync.Mutex

	// reload signals the sync loop to pick up a new interval
	reload chan time.Duration

	statsSub  *notify.Subscription[*store.Stats]
	changeSub *notify.Subscription[notify.Event]

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a new Daemon instance. dash may be nil to run without a
// dashboard. Use Start() to begin syncing.
func New(st *store.Store, engine *sync.Engine, dash *dashboard.Server, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 5 * time.Minute
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:       st,
		engine:      engine,
		dash:        dash,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		reload:      make(chan time.Duration, 1),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform an initial sync of every account
// 2. Synchronize on the configured interval from then on
// 3. Watch the config file and apply interval changes
// 4. Stream results to the dashboard when one is attached
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.syncAll()

	if d.config.ConfigPath != "" {
		// Watch the directory: editors replace the file on save, which
		// drops a watch registered on the file itself.
		if err := d.watcher.Add(filepath.Dir(d.config.ConfigPath)); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.config.ConfigPath)
	}

	if d.dash != nil {
		boardTables := []notify.Table{
			notify.TableBoards, notify.TableStacks, notify.TableCards,
			notify.TableLabels, notify.TableCardUsers, notify.TableCardLabels,
		}
		d.statsSub = notify.Observe(d.store.Hub(), 0, boardTables,
			func(ctx context.Context) (*store.Stats, error) {
				return d.store.GetStats(ctx)
			})
		d.changeSub = d.store.Hub().Events(0, boardTables)
		d.wg.Add(2)
		go d.streamStats()
		go d.streamBoardUpdates()
	}

	d.wg.Add(3)
	go d.syncLoop()
	go d.watchFileEvents()
	go d.processChangeQueue()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	if d.statsSub != nil {
		d.statsSub.Close()
	}
	if d.changeSub != nil {
		d.changeSub.Close()
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// syncAll queues a synchronization for every account and reports each
// result to the log and the dashboard.
func (d *Daemon) syncAll() {
	accounts, err := d.store.ListAccounts(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Failed to list accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	d.config.Logger.Printf("Syncing %d accounts", len(accounts))
	for _, account := range accounts {
		accountID := account.ID
		started := time.Now()
		d.engine.Synchronize(d.ctx, accountID, func(err error) {
			if err != nil {
				d.config.Logger.Printf("Sync failed for account %d: %v", accountID, err)
			}
			if d.dash == nil {
				return
			}
			result := dashboard.SyncResultData{
				AccountID: accountID,
				Duration:  time.Since(started),
			}
			if err != nil {
				result.Error = err.Error()
			}
			d.dash.BroadcastSyncResult(result)
		})
	}
}

// syncLoop runs the periodic sync ticker, resetting it when the
// configured interval changes.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	interval := d.config.SyncInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case next := <-d.reload:
			if next == interval {
				continue
			}
			d.config.Logger.Printf("Sync interval changed: %v -> %v", interval, next)
			interval = next
			ticker.Reset(interval)

		case <-ticker.C:
			d.syncAll()
		}
	}
}

// streamStats forwards cache statistics to the dashboard whenever the
// store changes.
func (d *Daemon) streamStats() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case stats, ok := <-d.statsSub.C:
			if !ok {
				return
			}
			d.dash.BroadcastStats(stats)
		}
	}
}

// streamBoardUpdates forwards committed board-tree writes to the
// dashboard so connected clients can refresh the affected views.
func (d *Daemon) streamBoardUpdates() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-d.changeSub.C:
			if !ok {
				return
			}
			tables := make([]string, len(ev.Tables))
			for i, t := range ev.Tables {
				tables[i] = string(t)
			}
			d.dash.BroadcastBoardUpdate(dashboard.BoardUpdateData{
				AccountID: ev.AccountID,
				Tables:    tables,
			})
		}
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Rename
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// Only the config file matters
			if filepath.Clean(event.Name) != filepath.Clean(d.config.ConfigPath) {
				continue
			}

			d.config.Logger.Printf("Config event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges reloads the config once changes settle.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	dirty := false

	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		dirty = true
	}

	if !dirty {
		return
	}

	if err := d.reloadConfig(); err != nil {
		d.config.Logger.Printf("Error reloading config: %v", err)
	}
}

// reloadConfig re-reads the config file and signals the sync loop if
// the interval changed.
func (d *Daemon) reloadConfig() error {
	v := viper.New()
	v.SetConfigFile(d.config.ConfigPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	interval := v.GetDuration("sync.interval")
	if interval <= 0 {
		return nil
	}

	select {
	case d.reload <- interval:
	default:
	}
	return nil
}
