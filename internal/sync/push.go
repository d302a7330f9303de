package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/remote"
)

// pushAccount uploads every pending local change for one account.
// Board scopes push independently: a failure inside one board abandons
// the rest of that board's scope and moves on to the next, and all
// scope failures are reported together.
func (e *Engine) pushAccount(ctx context.Context, api remote.API, account *model.Account) error {
	boards, err := e.store.ListAllBoards(ctx, account.ID)
	if err != nil {
		return err
	}

	var errs []error
	for _, board := range boards {
		if err := e.pushBoard(ctx, api, account, board); err != nil {
			errs = append(errs, fmt.Errorf("board %q: %w", board.Title, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) pushBoard(ctx context.Context, api remote.API, account *model.Account, board *model.Board) error {
	switch board.Status {
	case model.StatusLocalDeleted:
		if board.RemoteID != nil {
			if err := api.DeleteBoard(ctx, *board.RemoteID); err != nil {
				return err
			}
		}
		// Nothing below a deleted board is worth pushing.
		return e.store.PurgeBoard(ctx, board.AccountID, board.LocalID)

	case model.StatusLocalEdited:
		if board.RemoteID == nil {
			created, err := api.CreateBoard(ctx, remote.Board{Title: board.Title, Color: board.Color})
			if err != nil {
				return err
			}
			board.RemoteID = &created.ID
		} else {
			if _, err := api.UpdateBoard(ctx, *board.RemoteID, remote.Board{Title: board.Title, Color: board.Color}); err != nil {
				return err
			}
		}
		board.Status = model.StatusUpToDate
		if err := e.store.UpdateBoard(ctx, board); err != nil {
			return err
		}
	}

	if board.RemoteID == nil {
		return nil
	}

	if err := e.pushLabels(ctx, api, board); err != nil {
		return err
	}
	return e.pushStacks(ctx, api, account, board)
}

func (e *Engine) pushLabels(ctx context.Context, api remote.API, board *model.Board) error {
	labels, err := e.store.ListAllLabelsForBoard(ctx, board.LocalID)
	if err != nil {
		return err
	}
	for _, label := range labels {
		switch label.Status {
		case model.StatusLocalDeleted:
			if label.RemoteID != nil {
				if err := api.DeleteLabel(ctx, *board.RemoteID, *label.RemoteID); err != nil {
					return err
				}
			}
			if err := e.store.PurgeLabel(ctx, label.AccountID, label.LocalID); err != nil {
				return err
			}
		case model.StatusLocalEdited:
			if label.RemoteID == nil {
				created, err := api.CreateLabel(ctx, *board.RemoteID, remote.Label{Title: label.Title, Color: label.Color})
				if err != nil {
					return err
				}
				label.RemoteID = &created.ID
			} else {
				if _, err := api.UpdateLabel(ctx, *board.RemoteID, *label.RemoteID, remote.Label{Title: label.Title, Color: label.Color}); err != nil {
					return err
				}
			}
			label.Status = model.StatusUpToDate
			if err := e.store.UpdateLabel(ctx, label); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) pushStacks(ctx context.Context, api remote.API, account *model.Account, board *model.Board) error {
	stacks, err := e.store.ListAllStacksForBoard(ctx, board.LocalID)
	if err != nil {
		return err
	}
	for _, stack := range stacks {
		switch stack.Status {
		case model.StatusLocalDeleted:
			if stack.RemoteID != nil {
				if err := api.DeleteStack(ctx, *board.RemoteID, *stack.RemoteID); err != nil {
					return err
				}
			}
			if err := e.store.PurgeStack(ctx, stack.AccountID, stack.LocalID); err != nil {
				return err
			}
			continue
		case model.StatusLocalEdited:
			if stack.RemoteID == nil {
				created, err := api.CreateStack(ctx, *board.RemoteID, remote.Stack{Title: stack.Title, Order: stack.Order})
				if err != nil {
					return err
				}
				stack.RemoteID = &created.ID
			} else {
				if _, err := api.UpdateStack(ctx, *board.RemoteID, *stack.RemoteID, remote.Stack{Title: stack.Title, Order: stack.Order}); err != nil {
					return err
				}
			}
			stack.Status = model.StatusUpToDate
			if err := e.store.UpdateStack(ctx, stack); err != nil {
				return err
			}
		}
		if stack.RemoteID == nil {
			continue
		}
		if err := e.pushCards(ctx, api, account, board, stack); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pushCards(ctx context.Context, api remote.API, account *model.Account, board *model.Board, stack *model.Stack) error {
	cards, err := e.store.ListAllCardsForStack(ctx, stack.LocalID)
	if err != nil {
		return err
	}
	for _, card := range cards {
		switch card.Status {
		case model.StatusLocalDeleted:
			if card.RemoteID != nil {
				if err := api.DeleteCard(ctx, *board.RemoteID, *stack.RemoteID, *card.RemoteID); err != nil {
					return err
				}
			}
			if err := e.store.PurgeCard(ctx, card.AccountID, card.LocalID); err != nil {
				return err
			}
			continue
		case model.StatusLocalEdited:
			payload := remote.Card{
				Title:       card.Title,
				Description: card.Description,
				Order:       card.Order,
				DueDate:     card.DueDate,
			}
			if card.RemoteID == nil {
				created, err := api.CreateCard(ctx, *board.RemoteID, *stack.RemoteID, payload)
				if err != nil {
					return err
				}
				card.RemoteID = &created.ID
			} else {
				if _, err := api.UpdateCard(ctx, *board.RemoteID, *stack.RemoteID, *card.RemoteID, payload); err != nil {
					return err
				}
			}
			card.Status = model.StatusUpToDate
			if err := e.store.UpdateCard(ctx, card); err != nil {
				return err
			}
		}
		if card.RemoteID == nil {
			continue
		}
		if err := e.pushCardRelations(ctx, api, account, board, stack, card); err != nil {
			return err
		}
	}
	return nil
}

// pushCardRelations flushes pending assignment changes on one card.
// An assignment whose user or label has not reached the server yet is
// skipped and retried on a later pass.
func (e *Engine) pushCardRelations(ctx context.Context, api remote.API, account *model.Account, board *model.Board, stack *model.Stack, card *model.Card) error {
	userJoins, err := e.store.ListCardUsers(ctx, card.LocalID)
	if err != nil {
		return err
	}
	for i := range userJoins {
		j := &userJoins[i]
		if !j.Status.Pending() {
			continue
		}
		user, err := e.store.GetUser(ctx, j.UserLocalID)
		if err != nil {
			return err
		}
		switch j.Status {
		case model.StatusLocalEdited:
			if err := api.AssignUser(ctx, *board.RemoteID, *stack.RemoteID, *card.RemoteID, user.UID); err != nil {
				return err
			}
			j.Status = model.StatusUpToDate
			if err := e.store.SetCardUser(ctx, j); err != nil {
				return err
			}
		case model.StatusLocalDeleted:
			if err := api.UnassignUser(ctx, *board.RemoteID, *stack.RemoteID, *card.RemoteID, user.UID); err != nil {
				return err
			}
			if err := e.store.DeleteCardUser(ctx, card.LocalID, j.UserLocalID); err != nil {
				return err
			}
		}
	}

	labelJoins, err := e.store.ListCardLabels(ctx, card.LocalID)
	if err != nil {
		return err
	}
	for i := range labelJoins {
		j := &labelJoins[i]
		if !j.Status.Pending() {
			continue
		}
		label, err := e.store.GetLabel(ctx, j.LabelLocalID)
		if err != nil {
			return err
		}
		if label.RemoteID == nil {
			continue
		}
		switch j.Status {
		case model.StatusLocalEdited:
			if err := api.AssignLabel(ctx, *board.RemoteID, *stack.RemoteID, *card.RemoteID, *label.RemoteID); err != nil {
				return err
			}
			j.Status = model.StatusUpToDate
			if err := e.store.SetCardLabel(ctx, j); err != nil {
				return err
			}
		case model.StatusLocalDeleted:
			if err := api.UnassignLabel(ctx, *board.RemoteID, *stack.RemoteID, *card.RemoteID, *label.RemoteID); err != nil {
				return err
			}
			if err := e.store.DeleteCardLabel(ctx, card.LocalID, j.LabelLocalID); err != nil {
				return err
			}
		}
	}
	return nil
}
