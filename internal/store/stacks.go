package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

const stackColumns = `local_id, remote_id, account_id, board_local_id, title, ord, status, last_modified_local`

// CreateStack inserts a stack row and fills in its LocalID.
func (s *Store) CreateStack(ctx context.Context, st *model.Stack) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid stack: %w", err)
	}
	if !st.Status.Valid() {
		return fmt.Errorf("invalid stack status %q", st.Status)
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO stacks (remote_id, account_id, board_local_id, title, ord, status, last_modified_local)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		remoteIDToNull(st.RemoteID), st.AccountID, st.BoardLocalID, st.Title, st.Order,
		string(st.Status), timeToMillis(st.LastModifiedLocal))
	if err != nil {
		return fmt.Errorf("failed to insert stack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read stack id: %w", err)
	}
	st.LocalID = id

	s.publish(st.AccountID, notify.TableStacks)
	return nil
}

// UpdateStack overwrites every mutable column of the row identified by
// LocalID.
func (s *Store) UpdateStack(ctx context.Context, st *model.Stack) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid stack: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE stacks SET remote_id = ?, title = ?, ord = ?, status = ?, last_modified_local = ?
		 WHERE local_id = ?`,
		remoteIDToNull(st.RemoteID), st.Title, st.Order, string(st.Status),
		timeToMillis(st.LastModifiedLocal), st.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update stack %d: %w", st.LocalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("stack %d not found: %w", st.LocalID, ErrNotFound)
	}

	s.publish(st.AccountID, notify.TableStacks)
	return nil
}

// GetStack returns the stack with the given local id, regardless of status.
func (s *Store) GetStack(ctx context.Context, localID int64) (*model.Stack, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+stackColumns+` FROM stacks WHERE local_id = ?`, localID)
	return scanStackRow(row)
}

// GetStackByRemoteID resolves a stack by its server-assigned id within
// an account.
func (s *Store) GetStackByRemoteID(ctx context.Context, accountID, remoteID int64) (*model.Stack, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+stackColumns+` FROM stacks WHERE account_id = ? AND remote_id = ?`,
		accountID, remoteID)
	return scanStackRow(row)
}

// ListStacksForBoard returns the user-visible stacks of a board in
// column order.
func (s *Store) ListStacksForBoard(ctx context.Context, boardLocalID int64) ([]*model.Stack, error) {
	return s.queryStacks(ctx,
		`SELECT `+stackColumns+` FROM stacks
		 WHERE board_local_id = ? AND status <> ? ORDER BY ord ASC, local_id ASC`,
		boardLocalID, string(model.StatusLocalDeleted))
}

// ListAllStacksForBoard returns every stack row of a board, including
// rows pending deletion.
func (s *Store) ListAllStacksForBoard(ctx context.Context, boardLocalID int64) ([]*model.Stack, error) {
	return s.queryStacks(ctx,
		`SELECT `+stackColumns+` FROM stacks WHERE board_local_id = ? ORDER BY local_id ASC`,
		boardLocalID)
}

// PurgeStack physically removes a stack row; cards underneath it and
// their join rows are removed by cascading foreign keys.
func (s *Store) PurgeStack(ctx context.Context, accountID, localID int64) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM stacks WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to purge stack %d: %w", localID, err)
	}
	s.publish(accountID,
		notify.TableStacks, notify.TableCards, notify.TableCardUsers, notify.TableCardLabels)
	return nil
}

func (s *Store) queryStacks(ctx context.Context, query string, args ...any) ([]*model.Stack, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stacks: %w", err)
	}
	defer rows.Close()

	var stacks []*model.Stack
	for rows.Next() {
		var st model.Stack
		var remoteID sql.NullInt64
		var status string
		var lastMod int64
		if err := rows.Scan(&st.LocalID, &remoteID, &st.AccountID, &st.BoardLocalID,
			&st.Title, &st.Order, &status, &lastMod); err != nil {
			return nil, fmt.Errorf("failed to scan stack: %w", err)
		}
		st.RemoteID = nullToRemoteID(remoteID)
		st.Status = model.SyncStatus(status)
		st.LastModifiedLocal = millisToTime(lastMod)
		stacks = append(stacks, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stacks: %w", err)
	}
	return stacks, nil
}

func scanStackRow(row *sql.Row) (*model.Stack, error) {
	var st model.Stack
	var remoteID sql.NullInt64
	var status string
	var lastMod int64
	err := row.Scan(&st.LocalID, &remoteID, &st.AccountID, &st.BoardLocalID,
		&st.Title, &st.Order, &status, &lastMod)
	if err != nil {
		return nil, err
	}
	st.RemoteID = nullToRemoteID(remoteID)
	st.Status = model.SyncStatus(status)
	st.LastModifiedLocal = millisToTime(lastMod)
	return &st, nil
}
