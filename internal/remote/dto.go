package remote

import "time"

// Wire representations of the server's entity payloads. The shapes are
// a fixed external contract; field names follow the server's JSON.

// Board is the full-board payload: the board's own fields plus the
// labels and users scoped to it, so one listing call covers the whole
// board-level scope.
type Board struct {
	ID           int64   `json:"id,omitempty"`
	Title        string  `json:"title"`
	Color        string  `json:"color,omitempty"`
	LastModified int64   `json:"lastModified,omitempty"` // epoch seconds
	Labels       []Label `json:"labels,omitempty"`
	Users        []User  `json:"users,omitempty"`
}

// Stack is a board column.
type Stack struct {
	ID           int64  `json:"id,omitempty"`
	BoardID      int64  `json:"boardId,omitempty"`
	Title        string `json:"title"`
	Order        int    `json:"order"`
	LastModified int64  `json:"lastModified,omitempty"`
}

// Card is a task. Listings include the card's current relation sets.
type Card struct {
	ID            int64      `json:"id,omitempty"`
	StackID       int64      `json:"stackId,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Order         int        `json:"order"`
	DueDate       *time.Time `json:"duedate,omitempty"`
	LastModified  int64      `json:"lastModified,omitempty"`
	AssignedUsers []User     `json:"assignedUsers,omitempty"`
	Labels        []Label    `json:"labels,omitempty"`
}

// Label is a board-scoped tag.
type Label struct {
	ID           int64  `json:"id,omitempty"`
	Title        string `json:"title"`
	Color        string `json:"color,omitempty"`
	LastModified int64  `json:"lastModified,omitempty"`
}

// User is an account member.
type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayname,omitempty"`
}

// Capabilities reports the server's API version, checked against the
// minimum this client supports before the first sync of an account.
type Capabilities struct {
	Version string `json:"version"`
}
