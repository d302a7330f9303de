package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

// checkJoinTarget verifies that a join foreign key references an
// existing, non-deleted row of the expected table.
func (s *Store) checkJoinTarget(ctx context.Context, table string, localID int64) error {
	var status string
	err := s.conn.QueryRowContext(ctx,
		`SELECT status FROM `+table+` WHERE local_id = ?`, localID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return &ConstraintError{Table: table, Detail: fmt.Sprintf("row %d does not exist", localID)}
	}
	if err != nil {
		return fmt.Errorf("failed to check %s row %d: %w", table, localID, err)
	}
	if model.SyncStatus(status) == model.StatusLocalDeleted {
		return &ConstraintError{Table: table, Detail: fmt.Sprintf("row %d is pending deletion", localID)}
	}
	return nil
}

// cardAccount resolves the owning account of a card.
func (s *Store) cardAccount(ctx context.Context, cardLocalID int64) (int64, error) {
	var accountID int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT account_id FROM cards WHERE local_id = ?`, cardLocalID).Scan(&accountID)
	if err != nil {
		return 0, err
	}
	return accountID, nil
}

// SetCardUser inserts or updates the assignment relation between a card
// and a user. Both foreign keys must reference existing, non-deleted
// rows; otherwise a ConstraintError is returned.
func (s *Store) SetCardUser(ctx context.Context, rel *model.CardUser) error {
	if !rel.Status.Valid() {
		return fmt.Errorf("invalid relation status %q", rel.Status)
	}
	if err := s.checkJoinTarget(ctx, "cards", rel.CardLocalID); err != nil {
		return err
	}
	if err := s.checkJoinTarget(ctx, "users", rel.UserLocalID); err != nil {
		return err
	}

	accountID, err := s.cardAccount(ctx, rel.CardLocalID)
	if err != nil {
		return fmt.Errorf("failed to resolve card account: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO card_users (card_local_id, user_local_id, status)
		 VALUES (?, ?, ?)
		 ON CONFLICT(card_local_id, user_local_id) DO UPDATE SET status = excluded.status`,
		rel.CardLocalID, rel.UserLocalID, string(rel.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert card assignment: %w", err)
	}

	s.publish(accountID, notify.TableCardUsers)
	return nil
}

// DeleteCardUser physically removes an assignment row. Idempotent.
func (s *Store) DeleteCardUser(ctx context.Context, cardLocalID, userLocalID int64) error {
	accountID, _ := s.cardAccount(ctx, cardLocalID)
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM card_users WHERE card_local_id = ? AND user_local_id = ?`,
		cardLocalID, userLocalID)
	if err != nil {
		return fmt.Errorf("failed to delete card assignment: %w", err)
	}
	s.publish(accountID, notify.TableCardUsers)
	return nil
}

// ListCardUsers returns every assignment row of a card, including rows
// with pending relation changes.
func (s *Store) ListCardUsers(ctx context.Context, cardLocalID int64) ([]model.CardUser, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT card_local_id, user_local_id, status FROM card_users WHERE card_local_id = ?`,
		cardLocalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query card assignments: %w", err)
	}
	defer rows.Close()

	var rels []model.CardUser
	for rows.Next() {
		var rel model.CardUser
		var status string
		if err := rows.Scan(&rel.CardLocalID, &rel.UserLocalID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan card assignment: %w", err)
		}
		rel.Status = model.SyncStatus(status)
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// ListUsersForCard returns the users assigned to a card, excluding
// relations pending unassignment.
func (s *Store) ListUsersForCard(ctx context.Context, cardLocalID int64) ([]*model.User, error) {
	return s.queryUsers(ctx,
		`SELECT u.local_id, u.remote_id, u.account_id, u.uid, u.display_name, u.status, u.last_modified_local
		 FROM users u
		 JOIN card_users cu ON cu.user_local_id = u.local_id
		 WHERE cu.card_local_id = ? AND cu.status <> ?
		 ORDER BY u.uid ASC`,
		cardLocalID, string(model.StatusLocalDeleted))
}

// SetCardLabel inserts or updates the relation between a card and a
// label, with the same foreign-key validity rules as SetCardUser.
func (s *Store) SetCardLabel(ctx context.Context, rel *model.CardLabel) error {
	if !rel.Status.Valid() {
		return fmt.Errorf("invalid relation status %q", rel.Status)
	}
	if err := s.checkJoinTarget(ctx, "cards", rel.CardLocalID); err != nil {
		return err
	}
	if err := s.checkJoinTarget(ctx, "labels", rel.LabelLocalID); err != nil {
		return err
	}

	accountID, err := s.cardAccount(ctx, rel.CardLocalID)
	if err != nil {
		return fmt.Errorf("failed to resolve card account: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO card_labels (card_local_id, label_local_id, status)
		 VALUES (?, ?, ?)
		 ON CONFLICT(card_local_id, label_local_id) DO UPDATE SET status = excluded.status`,
		rel.CardLocalID, rel.LabelLocalID, string(rel.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert card label: %w", err)
	}

	s.publish(accountID, notify.TableCardLabels)
	return nil
}

// DeleteCardLabel physically removes a card-label row. Idempotent.
func (s *Store) DeleteCardLabel(ctx context.Context, cardLocalID, labelLocalID int64) error {
	accountID, _ := s.cardAccount(ctx, cardLocalID)
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM card_labels WHERE card_local_id = ? AND label_local_id = ?`,
		cardLocalID, labelLocalID)
	if err != nil {
		return fmt.Errorf("failed to delete card label: %w", err)
	}
	s.publish(accountID, notify.TableCardLabels)
	return nil
}

// ListCardLabels returns every label relation row of a card.
func (s *Store) ListCardLabels(ctx context.Context, cardLocalID int64) ([]model.CardLabel, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT card_local_id, label_local_id, status FROM card_labels WHERE card_local_id = ?`,
		cardLocalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query card labels: %w", err)
	}
	defer rows.Close()

	var rels []model.CardLabel
	for rows.Next() {
		var rel model.CardLabel
		var status string
		if err := rows.Scan(&rel.CardLocalID, &rel.LabelLocalID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan card label: %w", err)
		}
		rel.Status = model.SyncStatus(status)
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// ListLabelsForCard returns the labels attached to a card, excluding
// relations pending removal.
func (s *Store) ListLabelsForCard(ctx context.Context, cardLocalID int64) ([]*model.Label, error) {
	return s.queryLabels(ctx,
		`SELECT l.local_id, l.remote_id, l.account_id, l.board_local_id, l.title, l.color, l.status, l.last_modified_local
		 FROM labels l
		 JOIN card_labels cl ON cl.label_local_id = l.local_id
		 WHERE cl.card_local_id = ? AND cl.status <> ?
		 ORDER BY l.title ASC`,
		cardLocalID, string(model.StatusLocalDeleted))
}

// CountJoinRowsForCard reports how many join rows reference a card.
// Used by tests to assert cascade behavior.
func (s *Store) CountJoinRowsForCard(ctx context.Context, cardLocalID int64) (int, error) {
	var users, labels int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM card_users WHERE card_local_id = ?`, cardLocalID).Scan(&users); err != nil {
		return 0, fmt.Errorf("failed to count card assignments: %w", err)
	}
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM card_labels WHERE card_local_id = ?`, cardLocalID).Scan(&labels); err != nil {
		return 0, fmt.Errorf("failed to count card labels: %w", err)
	}
	return users + labels, nil
}
