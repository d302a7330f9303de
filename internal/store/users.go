package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

const userColumns = `local_id, remote_id, account_id, uid, display_name, status, last_modified_local`

// UpsertUser inserts a user or, if a row with the same (account, uid)
// pair exists, overwrites its fields. Users only arrive via pulls, so
// the upsert keeps merge code simple.
func (s *Store) UpsertUser(ctx context.Context, u *model.User) error {
	if u.UID == "" {
		return fmt.Errorf("invalid user: uid is required")
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (remote_id, account_id, uid, display_name, status, last_modified_local)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_id, uid) DO UPDATE SET
			remote_id = excluded.remote_id,
			display_name = excluded.display_name,
			status = excluded.status,
			last_modified_local = excluded.last_modified_local`,
		remoteIDToNull(u.RemoteID), u.AccountID, u.UID, u.DisplayName,
		string(u.Status), timeToMillis(u.LastModifiedLocal))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.UID, err)
	}

	row := s.conn.QueryRowContext(ctx,
		`SELECT local_id FROM users WHERE account_id = ? AND uid = ?`, u.AccountID, u.UID)
	if err := row.Scan(&u.LocalID); err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}

	s.publish(u.AccountID, notify.TableUsers)
	return nil
}

// GetUser returns the user with the given local id.
func (s *Store) GetUser(ctx context.Context, localID int64) (*model.User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE local_id = ?`, localID)
	return scanUserRow(row)
}

// GetUserByUID resolves a user by server uid within an account.
func (s *Store) GetUserByUID(ctx context.Context, accountID int64, uid string) (*model.User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE account_id = ? AND uid = ?`, accountID, uid)
	return scanUserRow(row)
}

// ListUsersForAccount returns every user of an account.
func (s *Store) ListUsersForAccount(ctx context.Context, accountID int64) ([]*model.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE account_id = ? ORDER BY uid ASC`, accountID)
}

// SearchUsers returns account users whose uid or display name contains
// the term, case-insensitively.
func (s *Store) SearchUsers(ctx context.Context, accountID int64, term string) ([]*model.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE account_id = ?
		   AND (LOWER(uid) LIKE '%' || LOWER(?) || '%'
		     OR LOWER(display_name) LIKE '%' || LOWER(?) || '%')
		 ORDER BY uid ASC`,
		accountID, term, term)
}

// PurgeUser physically removes a user row; its card_users join rows are
// removed by cascading foreign keys.
func (s *Store) PurgeUser(ctx context.Context, accountID, localID int64) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM users WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to purge user %d: %w", localID, err)
	}
	s.publish(accountID, notify.TableUsers, notify.TableCardUsers)
	return nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var u model.User
		var remoteID sql.NullInt64
		var status string
		var lastMod int64
		if err := rows.Scan(&u.LocalID, &remoteID, &u.AccountID, &u.UID,
			&u.DisplayName, &status, &lastMod); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.RemoteID = nullToRemoteID(remoteID)
		u.Status = model.SyncStatus(status)
		u.LastModifiedLocal = millisToTime(lastMod)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUserRow(row *sql.Row) (*model.User, error) {
	var u model.User
	var remoteID sql.NullInt64
	var status string
	var lastMod int64
	err := row.Scan(&u.LocalID, &remoteID, &u.AccountID, &u.UID,
		&u.DisplayName, &status, &lastMod)
	if err != nil {
		return nil, err
	}
	u.RemoteID = nullToRemoteID(remoteID)
	u.Status = model.SyncStatus(status)
	u.LastModifiedLocal = millisToTime(lastMod)
	return &u, nil
}
