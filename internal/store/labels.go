package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

const labelColumns = `local_id, remote_id, account_id, board_local_id, title, color, status, last_modified_local`

// CreateLabel inserts a label row and fills in its LocalID.
func (s *Store) CreateLabel(ctx context.Context, l *model.Label) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("invalid label: %w", err)
	}
	if !l.Status.Valid() {
		return fmt.Errorf("invalid label status %q", l.Status)
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO labels (remote_id, account_id, board_local_id, title, color, status, last_modified_local)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		remoteIDToNull(l.RemoteID), l.AccountID, l.BoardLocalID, l.Title, l.Color,
		string(l.Status), timeToMillis(l.LastModifiedLocal))
	if err != nil {
		return fmt.Errorf("failed to insert label: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read label id: %w", err)
	}
	l.LocalID = id

	s.publish(l.AccountID, notify.TableLabels)
	return nil
}

// UpdateLabel overwrites every mutable column of the row identified by
// LocalID.
func (s *Store) UpdateLabel(ctx context.Context, l *model.Label) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("invalid label: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE labels SET remote_id = ?, title = ?, color = ?, status = ?, last_modified_local = ?
		 WHERE local_id = ?`,
		remoteIDToNull(l.RemoteID), l.Title, l.Color, string(l.Status),
		timeToMillis(l.LastModifiedLocal), l.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update label %d: %w", l.LocalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("label %d not found: %w", l.LocalID, ErrNotFound)
	}

	s.publish(l.AccountID, notify.TableLabels)
	return nil
}

// GetLabel returns the label with the given local id, regardless of status.
func (s *Store) GetLabel(ctx context.Context, localID int64) (*model.Label, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE local_id = ?`, localID)
	return scanLabelRow(row)
}

// GetLabelByRemoteID resolves a label by its server-assigned id within
// an account.
func (s *Store) GetLabelByRemoteID(ctx context.Context, accountID, remoteID int64) (*model.Label, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE account_id = ? AND remote_id = ?`,
		accountID, remoteID)
	return scanLabelRow(row)
}

// ListLabelsForBoard returns the user-visible labels of a board.
func (s *Store) ListLabelsForBoard(ctx context.Context, boardLocalID int64) ([]*model.Label, error) {
	return s.queryLabels(ctx,
		`SELECT `+labelColumns+` FROM labels
		 WHERE board_local_id = ? AND status <> ? ORDER BY title ASC`,
		boardLocalID, string(model.StatusLocalDeleted))
}

// ListAllLabelsForBoard returns every label row of a board, including
// rows pending deletion.
func (s *Store) ListAllLabelsForBoard(ctx context.Context, boardLocalID int64) ([]*model.Label, error) {
	return s.queryLabels(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE board_local_id = ? ORDER BY local_id ASC`,
		boardLocalID)
}

// SearchLabelsByTitle returns the labels of a board whose title
// contains the term, case-insensitively.
func (s *Store) SearchLabelsByTitle(ctx context.Context, accountID, boardLocalID int64, term string) ([]*model.Label, error) {
	return s.queryLabels(ctx,
		`SELECT `+labelColumns+` FROM labels
		 WHERE account_id = ? AND board_local_id = ? AND status <> ?
		   AND LOWER(title) LIKE '%' || LOWER(?) || '%'
		 ORDER BY title ASC`,
		accountID, boardLocalID, string(model.StatusLocalDeleted), term)
}

// PurgeLabel physically removes a label row; its card_labels join rows
// are removed by cascading foreign keys.
func (s *Store) PurgeLabel(ctx context.Context, accountID, localID int64) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM labels WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to purge label %d: %w", localID, err)
	}
	s.publish(accountID, notify.TableLabels, notify.TableCardLabels)
	return nil
}

func (s *Store) queryLabels(ctx context.Context, query string, args ...any) ([]*model.Label, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	var labels []*model.Label
	for rows.Next() {
		var l model.Label
		var remoteID sql.NullInt64
		var status string
		var lastMod int64
		if err := rows.Scan(&l.LocalID, &remoteID, &l.AccountID, &l.BoardLocalID,
			&l.Title, &l.Color, &status, &lastMod); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		l.RemoteID = nullToRemoteID(remoteID)
		l.Status = model.SyncStatus(status)
		l.LastModifiedLocal = millisToTime(lastMod)
		labels = append(labels, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}
	return labels, nil
}

func scanLabelRow(row *sql.Row) (*model.Label, error) {
	var l model.Label
	var remoteID sql.NullInt64
	var status string
	var lastMod int64
	err := row.Scan(&l.LocalID, &remoteID, &l.AccountID, &l.BoardLocalID,
		&l.Title, &l.Color, &status, &lastMod)
	if err != nil {
		return nil, err
	}
	l.RemoteID = nullToRemoteID(remoteID)
	l.Status = model.SyncStatus(status)
	l.LastModifiedLocal = millisToTime(lastMod)
	return &l, nil
}
