package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

const boardColumns = `local_id, remote_id, account_id, title, color, status, last_modified_local`

// CreateBoard inserts a board row and fills in its LocalID. The caller
// decides the status: local_edited for optimistic local creation,
// up_to_date for rows inserted by a pull.
func (s *Store) CreateBoard(ctx context.Context, b *model.Board) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid board: %w", err)
	}
	if !b.Status.Valid() {
		return fmt.Errorf("invalid board status %q", b.Status)
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO boards (remote_id, account_id, title, color, status, last_modified_local)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		remoteIDToNull(b.RemoteID), b.AccountID, b.Title, b.Color,
		string(b.Status), timeToMillis(b.LastModifiedLocal))
	if err != nil {
		return fmt.Errorf("failed to insert board: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read board id: %w", err)
	}
	b.LocalID = id

	s.publish(b.AccountID, notify.TableBoards)
	return nil
}

// UpdateBoard overwrites every mutable column of the row identified by
// LocalID.
func (s *Store) UpdateBoard(ctx context.Context, b *model.Board) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid board: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE boards SET remote_id = ?, title = ?, color = ?, status = ?, last_modified_local = ?
		 WHERE local_id = ?`,
		remoteIDToNull(b.RemoteID), b.Title, b.Color, string(b.Status),
		timeToMillis(b.LastModifiedLocal), b.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update board %d: %w", b.LocalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("board %d not found: %w", b.LocalID, ErrNotFound)
	}

	s.publish(b.AccountID, notify.TableBoards)
	return nil
}

// GetBoard returns the board with the given local id, regardless of status.
func (s *Store) GetBoard(ctx context.Context, localID int64) (*model.Board, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+boardColumns+` FROM boards WHERE local_id = ?`, localID)
	return scanBoardRow(row)
}

// GetBoardByRemoteID resolves a board by its server-assigned id within
// an account.
func (s *Store) GetBoardByRemoteID(ctx context.Context, accountID, remoteID int64) (*model.Board, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+boardColumns+` FROM boards WHERE account_id = ? AND remote_id = ?`,
		accountID, remoteID)
	return scanBoardRow(row)
}

// ListBoards returns the user-visible boards of an account: every row
// except those pending deletion.
func (s *Store) ListBoards(ctx context.Context, accountID int64) ([]*model.Board, error) {
	return s.queryBoards(ctx,
		`SELECT `+boardColumns+` FROM boards
		 WHERE account_id = ? AND status <> ? ORDER BY title ASC`,
		accountID, string(model.StatusLocalDeleted))
}

// ListAllBoards returns every board row of an account, including rows
// pending deletion. The sync engine merges against this listing.
func (s *Store) ListAllBoards(ctx context.Context, accountID int64) ([]*model.Board, error) {
	return s.queryBoards(ctx,
		`SELECT `+boardColumns+` FROM boards WHERE account_id = ? ORDER BY local_id ASC`,
		accountID)
}

// PurgeBoard physically removes a board row. Stacks, cards, labels and
// join rows underneath it are removed by cascading foreign keys.
func (s *Store) PurgeBoard(ctx context.Context, accountID, localID int64) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM boards WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to purge board %d: %w", localID, err)
	}
	s.publish(accountID,
		notify.TableBoards, notify.TableStacks, notify.TableCards,
		notify.TableLabels, notify.TableCardUsers, notify.TableCardLabels)
	return nil
}

func (s *Store) queryBoards(ctx context.Context, query string, args ...any) ([]*model.Board, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	var boards []*model.Board
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boards: %w", err)
	}
	return boards, nil
}

func scanBoard(rows *sql.Rows) (*model.Board, error) {
	var b model.Board
	var remoteID sql.NullInt64
	var status string
	var lastMod int64
	if err := rows.Scan(&b.LocalID, &remoteID, &b.AccountID, &b.Title, &b.Color,
		&status, &lastMod); err != nil {
		return nil, fmt.Errorf("failed to scan board: %w", err)
	}
	b.RemoteID = nullToRemoteID(remoteID)
	b.Status = model.SyncStatus(status)
	b.LastModifiedLocal = millisToTime(lastMod)
	return &b, nil
}

func scanBoardRow(row *sql.Row) (*model.Board, error) {
	var b model.Board
	var remoteID sql.NullInt64
	var status string
	var lastMod int64
	err := row.Scan(&b.LocalID, &remoteID, &b.AccountID, &b.Title, &b.Color,
		&status, &lastMod)
	if err != nil {
		return nil, err
	}
	b.RemoteID = nullToRemoteID(remoteID)
	b.Status = model.SyncStatus(status)
	b.LastModifiedLocal = millisToTime(lastMod)
	return &b, nil
}
