package store

import (
	"context"
	"fmt"

	"github.com/deckhand/deckhand/internal/model"
)

// Stats summarizes the local cache for monitoring surfaces.
type Stats struct {
	Accounts int `json:"accounts"`
	Boards   int `json:"boards"`
	Stacks   int `json:"stacks"`
	Cards    int `json:"cards"`

	// Pending counts rows awaiting a push, split by direction.
	PendingEdits   int `json:"pending_edits"`
	PendingDeletes int `json:"pending_deletes"`
}

// GetStats aggregates row and pending-change counts across the cache.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM accounts", &st.Accounts},
		{"SELECT COUNT(*) FROM boards", &st.Boards},
		{"SELECT COUNT(*) FROM stacks", &st.Stacks},
		{"SELECT COUNT(*) FROM cards", &st.Cards},
	}
	for _, c := range counts {
		if err := s.conn.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	pending := `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN n ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN n ELSE 0 END), 0)
		FROM (
			SELECT status, COUNT(*) AS n FROM boards GROUP BY status
			UNION ALL SELECT status, COUNT(*) FROM stacks GROUP BY status
			UNION ALL SELECT status, COUNT(*) FROM cards GROUP BY status
			UNION ALL SELECT status, COUNT(*) FROM labels GROUP BY status
			UNION ALL SELECT status, COUNT(*) FROM card_users GROUP BY status
			UNION ALL SELECT status, COUNT(*) FROM card_labels GROUP BY status
		)`
	if err := s.conn.QueryRowContext(ctx, pending, string(model.StatusLocalEdited), string(model.StatusLocalDeleted)).
		Scan(&st.PendingEdits, &st.PendingDeletes); err != nil {
		return nil, fmt.Errorf("failed to count pending rows: %w", err)
	}

	return st, nil
}
