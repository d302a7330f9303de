package sync

import (
	"context"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

// Live queries re-run automatically whenever a store write touches the
// tables they read, delivering fresh snapshots on the subscription
// channel. Rows marked for deletion are already filtered out by the
// store's listing queries.

func (e *Engine) LiveBoards(accountID int64) *notify.Subscription[[]*model.Board] {
	return notify.Observe(e.store.Hub(), accountID, []notify.Table{notify.TableBoards},
		func(ctx context.Context) ([]*model.Board, error) {
			return e.store.ListBoards(ctx, accountID)
		})
}

func (e *Engine) LiveStacksForBoard(accountID, boardLocalID int64) *notify.Subscription[[]*model.Stack] {
	return notify.Observe(e.store.Hub(), accountID, []notify.Table{notify.TableStacks},
		func(ctx context.Context) ([]*model.Stack, error) {
			return e.store.ListStacksForBoard(ctx, boardLocalID)
		})
}

func (e *Engine) LiveCardsForStack(accountID, stackLocalID int64) *notify.Subscription[[]*model.Card] {
	return notify.Observe(e.store.Hub(), accountID, []notify.Table{notify.TableCards, notify.TableCardUsers, notify.TableCardLabels},
		func(ctx context.Context) ([]*model.Card, error) {
			return e.store.ListCardsForStack(ctx, stackLocalID)
		})
}

// LiveLabelSearch tracks a case-insensitive substring match over a
// board's labels, typically backing an assignment picker.
func (e *Engine) LiveLabelSearch(accountID, boardLocalID int64, term string) *notify.Subscription[[]*model.Label] {
	return notify.Observe(e.store.Hub(), accountID, []notify.Table{notify.TableLabels},
		func(ctx context.Context) ([]*model.Label, error) {
			return e.store.SearchLabelsByTitle(ctx, accountID, boardLocalID, term)
		})
}

func (e *Engine) LiveUsersForCard(accountID, cardLocalID int64) *notify.Subscription[[]*model.User] {
	return notify.Observe(e.store.Hub(), accountID, []notify.Table{notify.TableUsers, notify.TableCardUsers},
		func(ctx context.Context) ([]*model.User, error) {
			return e.store.ListUsersForCard(ctx, cardLocalID)
		})
}
