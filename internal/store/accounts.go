package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
)

// CreateAccount inserts a new account. Account names are unique; a
// duplicate name is rejected with a ConstraintError.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE name = ?`, a.Name).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check account name: %w", err)
	}
	if count > 0 {
		return &ConstraintError{Table: "accounts", Detail: fmt.Sprintf("account %q already exists", a.Name)}
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO accounts (name, user_name, url, last_sync) VALUES (?, ?, ?, ?)`,
		a.Name, a.UserName, a.URL, timeToMillis(a.LastSync))
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}
	a.ID = id

	s.publish(id, notify.TableAccounts)
	return nil
}

// GetAccount returns the account with the given id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, name, user_name, url, last_sync FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByName returns the account with the given unique name.
func (s *Store) GetAccountByName(ctx context.Context, name string) (*model.Account, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, name, user_name, url, last_sync FROM accounts WHERE name = ?`, name)
	return scanAccount(row)
}

// ListAccounts returns all accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, user_name, url, last_sync FROM accounts ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		var a model.Account
		var lastSync int64
		if err := rows.Scan(&a.ID, &a.Name, &a.UserName, &a.URL, &lastSync); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.LastSync = millisToTime(lastSync)
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// DeleteAccount removes an account and, via cascading foreign keys,
// every entity and join row scoped to it.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete account %d: %w", id, err)
	}
	s.publish(id,
		notify.TableAccounts, notify.TableBoards, notify.TableStacks,
		notify.TableCards, notify.TableLabels, notify.TableUsers,
		notify.TableCardUsers, notify.TableCardLabels)
	return nil
}

// SetLastSync persists the account's sync watermark. Only the sync
// engine calls this, and only after a pull that completed without
// transport failure.
func (s *Store) SetLastSync(ctx context.Context, accountID int64, t time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE accounts SET last_sync = ? WHERE id = ?`, timeToMillis(t), accountID)
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %d not found: %w", accountID, ErrNotFound)
	}
	s.publish(accountID, notify.TableAccounts)
	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	var lastSync int64
	err := row.Scan(&a.ID, &a.Name, &a.UserName, &a.URL, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.LastSync = millisToTime(lastSync)
	return &a, nil
}
