package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/remote"
	"github.com/deckhand/deckhand/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Synchronize with the server",
	Long: `Pull server changes into the local cache, then push pending local
changes back.

With --account only that account syncs; otherwise every account does.
A failed push leaves the change flagged locally and the next sync
retries it. There is no automatic retry.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		var accounts []*model.Account
		if name, _ := cmd.Flags().GetString("account"); name != "" {
			account, err := a.store.GetAccountByName(cmd.Context(), name)
			if err != nil {
				die("%v", err)
			}
			accounts = append(accounts, account)
		} else {
			if accounts, err = a.store.ListAccounts(cmd.Context()); err != nil {
				die("%v", err)
			}
		}
		if len(accounts) == 0 {
			die("no accounts configured; run 'deckhand account add'")
		}

		failed := false
		for _, account := range accounts {
			fmt.Printf("Syncing %s...\n", ui.Render(ui.TitleStyle, account.Name))
			start := time.Now()

			err := awaitErr(func(cb func(error)) {
				a.engine.Synchronize(cmd.Context(), account.ID, cb)
			})
			elapsed := time.Since(start).Round(time.Millisecond)

			switch {
			case err == nil:
				fmt.Printf("%s %s synced in %v\n", ui.Render(ui.OkStyle, "✓"), account.Name, elapsed)
			case errors.Is(err, remote.ErrOffline):
				fmt.Printf("%s %s: offline, local changes kept for later\n", ui.Render(ui.PendingStyle, "!"), account.Name)
			default:
				failed = true
				fmt.Printf("%s %s: %v\n", ui.Render(ui.ErrStyle, "✗"), account.Name, err)
			}
		}
		if failed {
			die("sync finished with errors")
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show cache and pending-change counts",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		stats, err := a.store.GetStats(cmd.Context())
		if err != nil {
			die("%v", err)
		}

		fmt.Printf("Accounts: %d\n", stats.Accounts)
		fmt.Printf("Boards:   %d\n", stats.Boards)
		fmt.Printf("Stacks:   %d\n", stats.Stacks)
		fmt.Printf("Cards:    %d\n", stats.Cards)

		pending := stats.PendingEdits + stats.PendingDeletes
		if pending == 0 {
			fmt.Println(ui.Render(ui.OkStyle, "Everything synced."))
			return
		}
		fmt.Println(ui.Render(ui.PendingStyle,
			fmt.Sprintf("%d pending changes (%d edits, %d deletes); run 'deckhand sync'",
				pending, stats.PendingEdits, stats.PendingDeletes)))
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusCmd)
}
