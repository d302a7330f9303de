// Command deckhand is an offline-first CLI client for Deck-style kanban
// servers. Boards, stacks and cards live in a local SQLite cache that
// is reconciled with the server on demand or by the serve daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/config"
	"github.com/deckhand/deckhand/internal/logging"
	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
	"github.com/deckhand/deckhand/internal/remote"
	"github.com/deckhand/deckhand/internal/store"
	"github.com/deckhand/deckhand/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Offline-first kanban client",
	Long: `Deckhand keeps a local copy of your kanban boards and syncs it
with the server when a connection is available.

All edits commit locally first and upload on the next sync, so the
CLI works identically with or without a network.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("account", "", "account name (defaults to the only configured account)")
}

func main() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "boards", Title: "Board commands:"},
		&cobra.Group{ID: "accounts", Title: "Account commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the long-lived objects every command needs.
type app struct {
	cfg    *config.Config
	store  *store.Store
	engine *sync.Engine
}

// openApp loads config and opens the local cache plus the sync engine.
// Commands must Close the returned app.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub(logging.New("[notify] "))
	st, err := store.Open(cfg.Database, hub)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: st}
	a.engine = sync.New(st, a.gateway, &sync.Config{
		Workers:      cfg.Sync.Workers,
		SiblingLimit: cfg.Sync.SiblingBoards,
		Logger:       logging.New("[sync] "),
	})
	return a, nil
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing store: %v\n", err)
	}
}

// gateway builds the HTTP client for an account, pairing the stored
// identity with the app password from the config file.
func (a *app) gateway(account *model.Account) remote.API {
	return remote.NewClient(remote.Config{
		BaseURL:  account.URL,
		UserName: account.UserName,
		Password: a.cfg.Accounts[account.Name].Password,
		Timeout:  a.cfg.Sync.Timeout,
	}, remote.InterfaceConnectivity{}, logging.New("[remote] "))
}

// resolveAccount finds the account named by --account, or the only
// configured account when the flag is empty.
func (a *app) resolveAccount(cmd *cobra.Command) (*model.Account, error) {
	name, _ := cmd.Flags().GetString("account")
	ctx := cmd.Context()

	if name != "" {
		return a.store.GetAccountByName(ctx, name)
	}

	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	switch len(accounts) {
	case 0:
		return nil, fmt.Errorf("no accounts configured; run 'deckhand account add'")
	case 1:
		return accounts[0], nil
	default:
		return nil, fmt.Errorf("multiple accounts configured; pass --account")
	}
}

// await bridges the engine's callback style back to the synchronous
// CLI flow.
func await[T any](run func(cb func(T, error))) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	run(func(v T, err error) { ch <- result{v, err} })
	r := <-ch
	return r.v, r.err
}

func awaitErr(run func(cb func(error))) error {
	ch := make(chan error, 1)
	run(func(err error) { ch <- err })
	return <-ch
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
