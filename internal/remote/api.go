package remote

import (
	"context"
	"time"
)

// API is the remote gateway contract: one method per entity type and
// operation, each scoped by its parent identifiers. Listing calls send
// the caller's watermark as a conditional since header and return the
// complete current membership of their scope; mutating calls run the
// offline guard before any network I/O.
//
// No method retries. Retry policy belongs to the sync engine's caller.
type API interface {
	// Capabilities fetches the server's API version.
	Capabilities(ctx context.Context) (Capabilities, error)

	// Boards lists the account's boards, including each board's labels
	// and users.
	Boards(ctx context.Context, since time.Time) ([]Board, error)
	CreateBoard(ctx context.Context, b Board) (Board, error)
	UpdateBoard(ctx context.Context, id int64, b Board) (Board, error)
	DeleteBoard(ctx context.Context, id int64) error

	Stacks(ctx context.Context, boardID int64, since time.Time) ([]Stack, error)
	CreateStack(ctx context.Context, boardID int64, st Stack) (Stack, error)
	UpdateStack(ctx context.Context, boardID, id int64, st Stack) (Stack, error)
	DeleteStack(ctx context.Context, boardID, id int64) error

	// Cards lists a stack's cards, including each card's assigned users
	// and labels.
	Cards(ctx context.Context, boardID, stackID int64, since time.Time) ([]Card, error)
	CreateCard(ctx context.Context, boardID, stackID int64, c Card) (Card, error)
	UpdateCard(ctx context.Context, boardID, stackID, id int64, c Card) (Card, error)
	DeleteCard(ctx context.Context, boardID, stackID, id int64) error

	CreateLabel(ctx context.Context, boardID int64, l Label) (Label, error)
	UpdateLabel(ctx context.Context, boardID, id int64, l Label) (Label, error)
	DeleteLabel(ctx context.Context, boardID, id int64) error

	// Relation calls are idempotent on the server side.
	AssignUser(ctx context.Context, boardID, stackID, cardID int64, uid string) error
	UnassignUser(ctx context.Context, boardID, stackID, cardID int64, uid string) error
	AssignLabel(ctx context.Context, boardID, stackID, cardID, labelID int64) error
	UnassignLabel(ctx context.Context, boardID, stackID, cardID, labelID int64) error
}
