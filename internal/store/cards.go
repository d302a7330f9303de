package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

const cardColumns = `local_id, remote_id, account_id, stack_local_id, title, description, ord, due_at, status, last_modified_local`

// CreateCard inserts a card row and fills in its LocalID.
func (s *Store) CreateCard(ctx context.Context, c *model.Card) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("invalid card status %q", c.Status)
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO cards (remote_id, account_id, stack_local_id, title, description, ord, due_at, status, last_modified_local)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		remoteIDToNull(c.RemoteID), c.AccountID, c.StackLocalID, c.Title, c.Description,
		c.Order, timePtrToNull(c.DueDate), string(c.Status), timeToMillis(c.LastModifiedLocal))
	if err != nil {
		return fmt.Errorf("failed to insert card: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read card id: %w", err)
	}
	c.LocalID = id

	s.publish(c.AccountID, notify.TableCards)
	return nil
}

// UpdateCard overwrites every mutable column of the row identified by
// LocalID.
func (s *Store) UpdateCard(ctx context.Context, c *model.Card) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE cards SET remote_id = ?, stack_local_id = ?, title = ?, description = ?,
		        ord = ?, due_at = ?, status = ?, last_modified_local = ?
		 WHERE local_id = ?`,
		remoteIDToNull(c.RemoteID), c.StackLocalID, c.Title, c.Description, c.Order,
		timePtrToNull(c.DueDate), string(c.Status), timeToMillis(c.LastModifiedLocal),
		c.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", c.LocalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("card %d not found: %w", c.LocalID, ErrNotFound)
	}

	s.publish(c.AccountID, notify.TableCards)
	return nil
}

// GetCard returns the card with the given local id, regardless of status.
func (s *Store) GetCard(ctx context.Context, localID int64) (*model.Card, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE local_id = ?`, localID)
	return scanCardRow(row)
}

// GetCardByRemoteID resolves a card by its server-assigned id within an
// account.
func (s *Store) GetCardByRemoteID(ctx context.Context, accountID, remoteID int64) (*model.Card, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE account_id = ? AND remote_id = ?`,
		accountID, remoteID)
	return scanCardRow(row)
}

// ListCardsForStack returns the user-visible cards of a stack in order.
func (s *Store) ListCardsForStack(ctx context.Context, stackLocalID int64) ([]*model.Card, error) {
	return s.queryCards(ctx,
		`SELECT `+cardColumns+` FROM cards
		 WHERE stack_local_id = ? AND status <> ? ORDER BY ord ASC, local_id ASC`,
		stackLocalID, string(model.StatusLocalDeleted))
}

// ListAllCardsForStack returns every card row of a stack, including
// rows pending deletion.
func (s *Store) ListAllCardsForStack(ctx context.Context, stackLocalID int64) ([]*model.Card, error) {
	return s.queryCards(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE stack_local_id = ? ORDER BY local_id ASC`,
		stackLocalID)
}

// PurgeCard physically removes a card row; its join rows are removed by
// cascading foreign keys.
func (s *Store) PurgeCard(ctx context.Context, accountID, localID int64) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM cards WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to purge card %d: %w", localID, err)
	}
	s.publish(accountID, notify.TableCards, notify.TableCardUsers, notify.TableCardLabels)
	return nil
}

func (s *Store) queryCards(ctx context.Context, query string, args ...any) ([]*model.Card, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []*model.Card
	for rows.Next() {
		var c model.Card
		var remoteID, dueAt sql.NullInt64
		var status string
		var lastMod int64
		if err := rows.Scan(&c.LocalID, &remoteID, &c.AccountID, &c.StackLocalID,
			&c.Title, &c.Description, &c.Order, &dueAt, &status, &lastMod); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		c.RemoteID = nullToRemoteID(remoteID)
		c.DueDate = nullToTimePtr(dueAt)
		c.Status = model.SyncStatus(status)
		c.LastModifiedLocal = millisToTime(lastMod)
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return cards, nil
}

func scanCardRow(row *sql.Row) (*model.Card, error) {
	var c model.Card
	var remoteID, dueAt sql.NullInt64
	var status string
	var lastMod int64
	err := row.Scan(&c.LocalID, &remoteID, &c.AccountID, &c.StackLocalID,
		&c.Title, &c.Description, &c.Order, &dueAt, &status, &lastMod)
	if err != nil {
		return nil, err
	}
	c.RemoteID = nullToRemoteID(remoteID)
	c.DueDate = nullToTimePtr(dueAt)
	c.Status = model.SyncStatus(status)
	c.LastModifiedLocal = millisToTime(lastMod)
	return &c, nil
}
