package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("engine closed")

// ErrDeleted is returned when a mutation targets a row already marked
// for deletion.
var ErrDeleted = errors.New("entity is marked deleted")

// Optimistic mutations commit locally and flag the row for the next
// push. Each runs on the worker pool; the callback (which may be nil)
// fires when the local commit lands. No network I/O happens here.

func (e *Engine) CreateBoard(ctx context.Context, b *model.Board, cb func(*model.Board, error)) {
	run(e, cb, b, func() error {
		if err := b.Validate(); err != nil {
			return err
		}
		b.MarkEdited(e.clock())
		return e.store.CreateBoard(ctx, b)
	})
}

func (e *Engine) UpdateBoard(ctx context.Context, b *model.Board, cb func(*model.Board, error)) {
	run(e, cb, b, func() error {
		if err := b.Validate(); err != nil {
			return err
		}
		if b.Status == model.StatusLocalDeleted {
			return ErrDeleted
		}
		b.MarkEdited(e.clock())
		return e.store.UpdateBoard(ctx, b)
	})
}

// DeleteBoard marks a board for deletion. A board the server has never
// seen is purged outright since there is nothing to unpublish.
func (e *Engine) DeleteBoard(ctx context.Context, localID int64, cb func(error)) {
	e.runErr(cb, func() error {
		b, err := e.store.GetBoard(ctx, localID)
		if err != nil {
			return err
		}
		if b.RemoteID == nil {
			return e.store.PurgeBoard(ctx, b.AccountID, localID)
		}
		b.MarkDeleted(e.clock())
		return e.store.UpdateBoard(ctx, b)
	})
}

func (e *Engine) CreateStack(ctx context.Context, s *model.Stack, cb func(*model.Stack, error)) {
	run(e, cb, s, func() error {
		if err := s.Validate(); err != nil {
			return err
		}
		s.MarkEdited(e.clock())
		return e.store.CreateStack(ctx, s)
	})
}

func (e *Engine) UpdateStack(ctx context.Context, s *model.Stack, cb func(*model.Stack, error)) {
	run(e, cb, s, func() error {
		if err := s.Validate(); err != nil {
			return err
		}
		if s.Status == model.StatusLocalDeleted {
			return ErrDeleted
		}
		s.MarkEdited(e.clock())
		return e.store.UpdateStack(ctx, s)
	})
}

func (e *Engine) DeleteStack(ctx context.Context, localID int64, cb func(error)) {
	e.runErr(cb, func() error {
		s, err := e.store.GetStack(ctx, localID)
		if err != nil {
			return err
		}
		if s.RemoteID == nil {
			return e.store.PurgeStack(ctx, s.AccountID, localID)
		}
		s.MarkDeleted(e.clock())
		return e.store.UpdateStack(ctx, s)
	})
}

func (e *Engine) CreateCard(ctx context.Context, c *model.Card, cb func(*model.Card, error)) {
	run(e, cb, c, func() error {
		if err := c.Validate(); err != nil {
			return err
		}
		c.MarkEdited(e.clock())
		return e.store.CreateCard(ctx, c)
	})
}

func (e *Engine) UpdateCard(ctx context.Context, c *model.Card, cb func(*model.Card, error)) {
	run(e, cb, c, func() error {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.Status == model.StatusLocalDeleted {
			return ErrDeleted
		}
		c.MarkEdited(e.clock())
		return e.store.UpdateCard(ctx, c)
	})
}

func (e *Engine) DeleteCard(ctx context.Context, localID int64, cb func(error)) {
	e.runErr(cb, func() error {
		c, err := e.store.GetCard(ctx, localID)
		if err != nil {
			return err
		}
		if c.RemoteID == nil {
			return e.store.PurgeCard(ctx, c.AccountID, localID)
		}
		c.MarkDeleted(e.clock())
		return e.store.UpdateCard(ctx, c)
	})
}

func (e *Engine) CreateLabel(ctx context.Context, l *model.Label, cb func(*model.Label, error)) {
	run(e, cb, l, func() error {
		if err := l.Validate(); err != nil {
			return err
		}
		l.MarkEdited(e.clock())
		return e.store.CreateLabel(ctx, l)
	})
}

func (e *Engine) UpdateLabel(ctx context.Context, l *model.Label, cb func(*model.Label, error)) {
	run(e, cb, l, func() error {
		if err := l.Validate(); err != nil {
			return err
		}
		if l.Status == model.StatusLocalDeleted {
			return ErrDeleted
		}
		l.MarkEdited(e.clock())
		return e.store.UpdateLabel(ctx, l)
	})
}

func (e *Engine) DeleteLabel(ctx context.Context, localID int64, cb func(error)) {
	e.runErr(cb, func() error {
		l, err := e.store.GetLabel(ctx, localID)
		if err != nil {
			return err
		}
		if l.RemoteID == nil {
			return e.store.PurgeLabel(ctx, l.AccountID, localID)
		}
		l.MarkDeleted(e.clock())
		return e.store.UpdateLabel(ctx, l)
	})
}

// AssignUser records a pending user assignment on a card. Re-assigning
// an already synced assignment is a no-op.
func (e *Engine) AssignUser(ctx context.Context, cardLocalID, userLocalID int64, cb func(error)) {
	e.runErr(cb, func() error {
		joins, err := e.store.ListCardUsers(ctx, cardLocalID)
		if err != nil {
			return err
		}
		for i := range joins {
			j := &joins[i]
			if j.UserLocalID != userLocalID {
				continue
			}
			switch j.Status {
			case model.StatusUpToDate, model.StatusLocalEdited:
				return nil
			case model.StatusLocalDeleted:
				// The unassign never shipped; cancel it.
				j.Status = model.StatusUpToDate
				return e.store.SetCardUser(ctx, j)
			}
		}
		return e.store.SetCardUser(ctx, &model.CardUser{
			CardLocalID: cardLocalID,
			UserLocalID: userLocalID,
			Status:      model.StatusLocalEdited,
		})
	})
}

// UnassignUser records a pending user removal. An assignment the
// server never saw is dropped outright.
func (e *Engine) UnassignUser(ctx context.Context, cardLocalID, userLocalID int64, cb func(error)) {
	e.runErr(cb, func() error {
		joins, err := e.store.ListCardUsers(ctx, cardLocalID)
		if err != nil {
			return err
		}
		for i := range joins {
			j := &joins[i]
			if j.UserLocalID != userLocalID {
				continue
			}
			if j.Status == model.StatusLocalEdited {
				return e.store.DeleteCardUser(ctx, cardLocalID, userLocalID)
			}
			j.Status = model.StatusLocalDeleted
			return e.store.SetCardUser(ctx, j)
		}
		return fmt.Errorf("user %d is not assigned to card %d", userLocalID, cardLocalID)
	})
}

func (e *Engine) AssignLabel(ctx context.Context, cardLocalID, labelLocalID int64, cb func(error)) {
	e.runErr(cb, func() error {
		joins, err := e.store.ListCardLabels(ctx, cardLocalID)
		if err != nil {
			return err
		}
		for i := range joins {
			j := &joins[i]
			if j.LabelLocalID != labelLocalID {
				continue
			}
			switch j.Status {
			case model.StatusUpToDate, model.StatusLocalEdited:
				return nil
			case model.StatusLocalDeleted:
				j.Status = model.StatusUpToDate
				return e.store.SetCardLabel(ctx, j)
			}
		}
		return e.store.SetCardLabel(ctx, &model.CardLabel{
			CardLocalID:  cardLocalID,
			LabelLocalID: labelLocalID,
			Status:       model.StatusLocalEdited,
		})
	})
}

func (e *Engine) UnassignLabel(ctx context.Context, cardLocalID, labelLocalID int64, cb func(error)) {
	e.runErr(cb, func() error {
		joins, err := e.store.ListCardLabels(ctx, cardLocalID)
		if err != nil {
			return err
		}
		for i := range joins {
			j := &joins[i]
			if j.LabelLocalID != labelLocalID {
				continue
			}
			if j.Status == model.StatusLocalEdited {
				return e.store.DeleteCardLabel(ctx, cardLocalID, labelLocalID)
			}
			j.Status = model.StatusLocalDeleted
			return e.store.SetCardLabel(ctx, j)
		}
		return fmt.Errorf("label %d is not on card %d", labelLocalID, cardLocalID)
	})
}

// run submits an entity mutation, reporting the entity and error back.
func run[T any](e *Engine, cb func(T, error), entity T, op func() error) {
	if cb == nil {
		cb = func(T, error) {}
	}
	if !e.submit(func() { cb(entity, op()) }) {
		cb(entity, ErrClosed)
	}
}

// runErr submits a mutation whose only result is an error.
func (e *Engine) runErr(cb func(error), op func() error) {
	if cb == nil {
		cb = func(error) {}
	}
	if !e.submit(func() { cb(op()) }) {
		cb(ErrClosed)
	}
}
