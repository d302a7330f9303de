package sync

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/remote"
	"github.com/deckhand/deckhand/internal/store"
)

// pullAccount merges the server's state for one account into the
// store. Listings are membership snapshots: an entity the server no
// longer returns is treated as deleted and purged, unless the local
// row carries unpushed changes. Rows with pending local changes are
// never overwritten by pulled data.
func (e *Engine) pullAccount(ctx context.Context, api remote.API, account *model.Account) error {
	remoteBoards, err := api.Boards(ctx, account.LastSync)
	if err != nil {
		return err
	}

	locals, err := e.store.ListAllBoards(ctx, account.ID)
	if err != nil {
		return err
	}
	byRemote := make(map[int64]*model.Board, len(locals))
	for _, b := range locals {
		if b.RemoteID != nil {
			byRemote[*b.RemoteID] = b
		}
	}

	seen := make(map[int64]bool, len(remoteBoards))
	merged := make([]*model.Board, 0, len(remoteBoards))
	for i := range remoteBoards {
		rb := &remoteBoards[i]
		seen[rb.ID] = true

		local, ok := byRemote[rb.ID]
		switch {
		case !ok:
			local = &model.Board{
				Synced: model.Synced{
					RemoteID:  &rb.ID,
					AccountID: account.ID,
					Status:    model.StatusUpToDate,
				},
				Title: rb.Title,
				Color: rb.Color,
			}
			if err := e.store.CreateBoard(ctx, local); err != nil {
				return err
			}
		case local.Status.Pending():
			// Local changes win until they are pushed.
		default:
			local.Title = rb.Title
			local.Color = rb.Color
			if err := e.store.UpdateBoard(ctx, local); err != nil {
				return err
			}
		}

		if err := e.mergeUsers(ctx, account.ID, rb.Users); err != nil {
			return err
		}
		if err := e.mergeLabels(ctx, account.ID, local.LocalID, rb.Labels); err != nil {
			return err
		}
		merged = append(merged, local)
	}

	// Boards the server stopped listing are gone; purging cascades to
	// stacks, cards and relations. Boards never pushed have no remote
	// identity and are left alone.
	for _, b := range locals {
		if b.RemoteID == nil || seen[*b.RemoteID] || b.Status.Pending() {
			continue
		}
		if err := e.store.PurgeBoard(ctx, b.AccountID, b.LocalID); err != nil {
			return err
		}
	}

	// Sibling boards pull independently; the first failure is reported
	// but the remaining boards finish their pulls.
	g := new(errgroup.Group)
	g.SetLimit(e.limit)
	for _, b := range merged {
		if b.RemoteID == nil || b.Status == model.StatusLocalDeleted {
			continue
		}
		board := b
		g.Go(func() error {
			return e.pullBoard(ctx, api, account, board)
		})
	}
	return g.Wait()
}

// pullBoard merges one board's stacks, cards and card relations.
func (e *Engine) pullBoard(ctx context.Context, api remote.API, account *model.Account, board *model.Board) error {
	remoteStacks, err := api.Stacks(ctx, *board.RemoteID, account.LastSync)
	if err != nil {
		return err
	}

	locals, err := e.store.ListAllStacksForBoard(ctx, board.LocalID)
	if err != nil {
		return err
	}
	byRemote := make(map[int64]*model.Stack, len(locals))
	for _, s := range locals {
		if s.RemoteID != nil {
			byRemote[*s.RemoteID] = s
		}
	}

	seen := make(map[int64]bool, len(remoteStacks))
	merged := make([]*model.Stack, 0, len(remoteStacks))
	for i := range remoteStacks {
		rs := &remoteStacks[i]
		seen[rs.ID] = true

		local, ok := byRemote[rs.ID]
		switch {
		case !ok:
			local = &model.Stack{
				Synced: model.Synced{
					RemoteID:  &rs.ID,
					AccountID: account.ID,
					Status:    model.StatusUpToDate,
				},
				BoardLocalID: board.LocalID,
				Title:        rs.Title,
				Order:        rs.Order,
			}
			if err := e.store.CreateStack(ctx, local); err != nil {
				return err
			}
		case local.Status.Pending():
		default:
			local.Title = rs.Title
			local.Order = rs.Order
			if err := e.store.UpdateStack(ctx, local); err != nil {
				return err
			}
		}
		merged = append(merged, local)
	}

	for _, s := range locals {
		if s.RemoteID == nil || seen[*s.RemoteID] || s.Status.Pending() {
			continue
		}
		if err := e.store.PurgeStack(ctx, s.AccountID, s.LocalID); err != nil {
			return err
		}
	}

	var errs []error
	for _, s := range merged {
		if s.RemoteID == nil || s.Status == model.StatusLocalDeleted {
			continue
		}
		if err := e.pullStack(ctx, api, account, board, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pullStack merges one stack's cards and their relations.
func (e *Engine) pullStack(ctx context.Context, api remote.API, account *model.Account, board *model.Board, stack *model.Stack) error {
	remoteCards, err := api.Cards(ctx, *board.RemoteID, *stack.RemoteID, account.LastSync)
	if err != nil {
		return err
	}

	locals, err := e.store.ListAllCardsForStack(ctx, stack.LocalID)
	if err != nil {
		return err
	}
	byRemote := make(map[int64]*model.Card, len(locals))
	for _, c := range locals {
		if c.RemoteID != nil {
			byRemote[*c.RemoteID] = c
		}
	}

	seen := make(map[int64]bool, len(remoteCards))
	for i := range remoteCards {
		rc := &remoteCards[i]
		seen[rc.ID] = true

		local, ok := byRemote[rc.ID]
		switch {
		case !ok:
			local = &model.Card{
				Synced: model.Synced{
					RemoteID:  &rc.ID,
					AccountID: account.ID,
					Status:    model.StatusUpToDate,
				},
				StackLocalID: stack.LocalID,
				Title:        rc.Title,
				Description:  rc.Description,
				Order:        rc.Order,
				DueDate:      rc.DueDate,
			}
			if err := e.store.CreateCard(ctx, local); err != nil {
				return err
			}
		case local.Status.Pending():
		default:
			local.StackLocalID = stack.LocalID
			local.Title = rc.Title
			local.Description = rc.Description
			local.Order = rc.Order
			local.DueDate = rc.DueDate
			if err := e.store.UpdateCard(ctx, local); err != nil {
				return err
			}
		}

		if local.Status.Pending() {
			continue
		}
		if err := e.mergeCardRelations(ctx, account.ID, board.LocalID, local, rc); err != nil {
			return err
		}
	}

	for _, c := range locals {
		if c.RemoteID == nil || seen[*c.RemoteID] || c.Status.Pending() {
			continue
		}
		if err := e.store.PurgeCard(ctx, c.AccountID, c.LocalID); err != nil {
			return err
		}
	}
	return nil
}

// mergeUsers upserts the users visible on a pulled board.
func (e *Engine) mergeUsers(ctx context.Context, accountID int64, users []remote.User) error {
	for i := range users {
		ru := &users[i]
		u := &model.User{
			Synced: model.Synced{
				AccountID: accountID,
				Status:    model.StatusUpToDate,
			},
			UID:         ru.UID,
			DisplayName: ru.DisplayName,
		}
		if err := e.store.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// mergeLabels reconciles a board's label set against the pulled
// snapshot.
func (e *Engine) mergeLabels(ctx context.Context, accountID, boardLocalID int64, labels []remote.Label) error {
	locals, err := e.store.ListAllLabelsForBoard(ctx, boardLocalID)
	if err != nil {
		return err
	}
	byRemote := make(map[int64]*model.Label, len(locals))
	for _, l := range locals {
		if l.RemoteID != nil {
			byRemote[*l.RemoteID] = l
		}
	}

	seen := make(map[int64]bool, len(labels))
	for i := range labels {
		rl := &labels[i]
		seen[rl.ID] = true

		local, ok := byRemote[rl.ID]
		switch {
		case !ok:
			local = &model.Label{
				Synced: model.Synced{
					RemoteID:  &rl.ID,
					AccountID: accountID,
					Status:    model.StatusUpToDate,
				},
				BoardLocalID: boardLocalID,
				Title:        rl.Title,
				Color:        rl.Color,
			}
			if err := e.store.CreateLabel(ctx, local); err != nil {
				return err
			}
		case local.Status.Pending():
		default:
			local.Title = rl.Title
			local.Color = rl.Color
			if err := e.store.UpdateLabel(ctx, local); err != nil {
				return err
			}
		}
	}

	for _, l := range locals {
		if l.RemoteID == nil || seen[*l.RemoteID] || l.Status.Pending() {
			continue
		}
		if err := e.store.PurgeLabel(ctx, l.AccountID, l.LocalID); err != nil {
			return err
		}
	}
	return nil
}

// mergeCardRelations reconciles a card's assigned users and labels
// against the pulled card. Join rows with pending local changes stay
// untouched so unpushed assignments survive the pull.
func (e *Engine) mergeCardRelations(ctx context.Context, accountID, boardLocalID int64, card *model.Card, rc *remote.Card) error {
	// Assigned users, keyed by server uid.
	existing, err := e.store.ListCardUsers(ctx, card.LocalID)
	if err != nil {
		return err
	}
	wantUser := make(map[int64]bool, len(rc.AssignedUsers))
	for i := range rc.AssignedUsers {
		u, err := e.store.GetUserByUID(ctx, accountID, rc.AssignedUsers[i].UID)
		if errors.Is(err, store.ErrNotFound) {
			u = &model.User{
				Synced: model.Synced{
					AccountID: accountID,
					Status:    model.StatusUpToDate,
				},
				UID:         rc.AssignedUsers[i].UID,
				DisplayName: rc.AssignedUsers[i].DisplayName,
			}
			if err := e.store.UpsertUser(ctx, u); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		wantUser[u.LocalID] = true

		var found *model.CardUser
		for i := range existing {
			if existing[i].UserLocalID == u.LocalID {
				found = &existing[i]
				break
			}
		}
		if found == nil {
			j := &model.CardUser{
				CardLocalID: card.LocalID,
				UserLocalID: u.LocalID,
				Status:      model.StatusUpToDate,
			}
			if err := e.store.SetCardUser(ctx, j); err != nil {
				return err
			}
		} else if !found.Status.Pending() && found.Status != model.StatusUpToDate {
			found.Status = model.StatusUpToDate
			if err := e.store.SetCardUser(ctx, found); err != nil {
				return err
			}
		}
	}
	for _, j := range existing {
		if wantUser[j.UserLocalID] || j.Status.Pending() {
			continue
		}
		if err := e.store.DeleteCardUser(ctx, card.LocalID, j.UserLocalID); err != nil {
			return err
		}
	}

	// Labels, keyed by server label id.
	existingLabels, err := e.store.ListCardLabels(ctx, card.LocalID)
	if err != nil {
		return err
	}
	wantLabel := make(map[int64]bool, len(rc.Labels))
	for i := range rc.Labels {
		l, err := e.store.GetLabelByRemoteID(ctx, accountID, rc.Labels[i].ID)
		if errors.Is(err, store.ErrNotFound) {
			// Label snapshot for this board has not landed yet; the
			// next pull pairs it up.
			continue
		} else if err != nil {
			return err
		}
		wantLabel[l.LocalID] = true

		var found *model.CardLabel
		for i := range existingLabels {
			if existingLabels[i].LabelLocalID == l.LocalID {
				found = &existingLabels[i]
				break
			}
		}
		if found == nil {
			j := &model.CardLabel{
				CardLocalID:  card.LocalID,
				LabelLocalID: l.LocalID,
				Status:       model.StatusUpToDate,
			}
			if err := e.store.SetCardLabel(ctx, j); err != nil {
				return err
			}
		}
	}
	for _, j := range existingLabels {
		if wantLabel[j.LabelLocalID] || j.Status.Pending() {
			continue
		}
		if err := e.store.DeleteCardLabel(ctx, card.LocalID, j.LabelLocalID); err != nil {
			return err
		}
	}
	return nil
}
