package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/deckhand/deckhand/internal/dashboard"
	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
	"github.com/deckhand/deckhand/internal/remote"
	"github.com/deckhand/deckhand/internal/store"
	"github.com/deckhand/deckhand/internal/sync"
)

func newTestDaemon(t *testing.T, configPath string) *Daemon {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "deckhand.db"), notify.NewHub(nil))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	// No accounts exist, so the gateway is never resolved.
	engine := sync.New(st, func(*model.Account) remote.API { return nil }, &sync.Config{
		Workers: 1, SiblingLimit: 1, Logger: log.New(io.Discard, "", 0),
	})
	t.Cleanup(engine.Close)

	d, err := New(st, engine, nil, &Config{
		SyncInterval:     time.Hour,
		DebounceInterval: 50 * time.Millisecond,
		ConfigPath:       configPath,
		Logger:           log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	return d
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Error("nil store must be rejected")
	}
}

func TestStartStop(t *testing.T) {
	d := newTestDaemon(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("daemon exited with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestStart_ForwardsStoreChangesToDashboard(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "deckhand.db"), notify.NewHub(nil))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	engine := sync.New(st, func(*model.Account) remote.API { return nil }, &sync.Config{
		Workers: 1, SiblingLimit: 1, Logger: log.New(io.Discard, "", 0),
	})
	t.Cleanup(engine.Close)

	dash := dashboard.NewServer(&dashboard.Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := dash.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		_ = dash.Stop()
	})

	d, err := New(st, engine, dash, &Config{
		SyncInterval:     time.Hour,
		DebounceInterval: 50 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()

	conn, _, err := websocket.Dial(wctx, "ws://"+dash.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The account is created after Start so the initial sync pass sees
	// no accounts and the nil gateway is never resolved.
	a := &model.Account{Name: "work", UserName: "alice", URL: "https://cloud.example.com"}
	if err := st.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	board := &model.Board{
		Synced: model.Synced{AccountID: a.ID, Status: model.StatusLocalEdited},
		Title:  "Sprint",
	}
	if err := st.CreateBoard(context.Background(), board); err != nil {
		t.Fatalf("failed to create board: %v", err)
	}

	// Frames interleave with welcome and stats broadcasts; scan until
	// the board update arrives.
	for {
		_, data, err := conn.Read(wctx)
		if err != nil {
			t.Fatalf("no board update received: %v", err)
		}
		var msg dashboard.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Type != dashboard.MessageTypeBoardUpdate {
			continue
		}

		var update dashboard.BoardUpdateData
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			t.Fatalf("Failed to unmarshal board update: %v", err)
		}
		if update.AccountID != a.ID {
			t.Errorf("board update account = %d, want %d", update.AccountID, a.ID)
		}
		if len(update.Tables) != 1 || update.Tables[0] != "boards" {
			t.Errorf("board update tables = %v, want [boards]", update.Tables)
		}
		break
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("daemon exited with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestReloadConfig_SignalsNewInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  interval: 2m\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	d := newTestDaemon(t, path)
	defer d.watcher.Close()

	if err := d.reloadConfig(); err != nil {
		t.Fatalf("reloadConfig failed: %v", err)
	}

	select {
	case got := <-d.reload:
		if got != 2*time.Minute {
			t.Errorf("reload interval = %v, want 2m", got)
		}
	default:
		t.Fatal("no reload signal sent")
	}
}

func TestReloadConfig_IgnoresMissingInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dashboard:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	d := newTestDaemon(t, path)
	defer d.watcher.Close()

	if err := d.reloadConfig(); err != nil {
		t.Fatalf("reloadConfig failed: %v", err)
	}

	select {
	case got := <-d.reload:
		t.Errorf("unexpected reload signal %v", got)
	default:
	}
}

func TestProcessPendingChanges_Debounces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  interval: 3m\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	d := newTestDaemon(t, path)
	defer d.watcher.Close()

	// A change that just arrived is not acted on yet
	d.queueChange(path)
	d.processPendingChanges()
	select {
	case got := <-d.reload:
		t.Fatalf("change processed before the debounce window (%v)", got)
	default:
	}

	// Once the window passes, the reload fires
	d.changeQueueMu.Lock()
	d.changeQueue[path] = time.Now().Add(-time.Second)
	d.changeQueueMu.Unlock()

	d.processPendingChanges()
	select {
	case got := <-d.reload:
		if got != 3*time.Minute {
			t.Errorf("reload interval = %v, want 3m", got)
		}
	default:
		t.Fatal("settled change was not processed")
	}
}
