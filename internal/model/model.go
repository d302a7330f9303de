// Package model defines the entities cached by the local store and
// reconciled against the remote board server.
//
// Every synced entity carries two identities: LocalID, assigned by the
// local store and stable for the row's local lifetime, and RemoteID,
// assigned by the server and nil until the entity has been created
// server-side. Entities never cross accounts.
package model

import (
	"fmt"
	"time"
)

// SyncStatus is the per-row lifecycle state used by the sync engine to
// decide what to push, pull, and merge.
type SyncStatus string

const (
	// StatusUpToDate means the row matches the server's copy as of the
	// last successful sync.
	StatusUpToDate SyncStatus = "up_to_date"

	// StatusLocalEdited means the row was created or modified locally
	// and the change has not been pushed yet.
	StatusLocalEdited SyncStatus = "local_edited"

	// StatusLocalDeleted means the row was deleted locally. The row is
	// retained until the delete round-trips to the server, then purged.
	StatusLocalDeleted SyncStatus = "local_deleted"
)

// Valid reports whether s is one of the defined statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusUpToDate, StatusLocalEdited, StatusLocalDeleted:
		return true
	}
	return false
}

// Pending reports whether the row has an unsynced local change.
// Rows with pending changes are never overwritten by a pull.
func (s SyncStatus) Pending() bool {
	return s == StatusLocalEdited || s == StatusLocalDeleted
}

// Synced is embedded by every entity that participates in the
// pull-merge-push cycle.
type Synced struct {
	// LocalID is the store-assigned primary key. Never reused.
	LocalID int64

	// RemoteID is the server-assigned identifier. Nil until the entity
	// has been created server-side; unique per entity table and account
	// once assigned.
	RemoteID *int64

	// AccountID scopes the entity to its owning account.
	AccountID int64

	// Status is the row's sync lifecycle state.
	Status SyncStatus

	// LastModifiedLocal is the time of the last local mutation, used to
	// detect conflicts against the server's lastModified.
	LastModifiedLocal time.Time
}

// MarkEdited flags the entity as locally modified at now.
func (s *Synced) MarkEdited(now time.Time) {
	s.Status = StatusLocalEdited
	s.LastModifiedLocal = now
}

// MarkDeleted flags the entity as locally deleted at now.
func (s *Synced) MarkDeleted(now time.Time) {
	s.Status = StatusLocalDeleted
	s.LastModifiedLocal = now
}

// Account identifies a server-side account. Accounts are created locally
// and hold the per-account sync watermark.
type Account struct {
	ID       int64
	Name     string
	UserName string
	URL      string

	// LastSync is the watermark: the start time of the last pull that
	// completed without transport failure. Zero means never synced.
	LastSync time.Time
}

func (a *Account) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	if a.URL == "" {
		return fmt.Errorf("account url is required")
	}
	if a.UserName == "" {
		return fmt.Errorf("account username is required")
	}
	return nil
}

// Board is the top-level kanban container owned by an account.
type Board struct {
	Synced
	Title string
	Color string
}

func (b *Board) Validate() error {
	if b.Title == "" {
		return fmt.Errorf("board title is required")
	}
	if b.AccountID == 0 {
		return fmt.Errorf("board account id is required")
	}
	return nil
}

// Stack is an ordered column inside a board.
type Stack struct {
	Synced
	BoardLocalID int64
	Title        string
	Order        int
}

func (s *Stack) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("stack title is required")
	}
	if s.BoardLocalID == 0 {
		return fmt.Errorf("stack board id is required")
	}
	return nil
}

// Card is a task inside a stack. Assignees and labels are stored as
// join rows, not embedded.
type Card struct {
	Synced
	StackLocalID int64
	Title        string
	Description  string
	Order        int
	DueDate      *time.Time
}

func (c *Card) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("card title is required")
	}
	if c.StackLocalID == 0 {
		return fmt.Errorf("card stack id is required")
	}
	return nil
}

// Label is a colored tag scoped to a board.
type Label struct {
	Synced
	BoardLocalID int64
	Title        string
	Color        string
}

func (l *Label) Validate() error {
	if l.Title == "" {
		return fmt.Errorf("label title is required")
	}
	if l.BoardLocalID == 0 {
		return fmt.Errorf("label board id is required")
	}
	return nil
}

// User is a server-side account member that cards can be assigned to.
// Users are only ever pulled, never pushed.
type User struct {
	Synced
	UID         string
	DisplayName string
}

// CardUser is a relation row assigning a user to a card. It has no
// identity beyond the pair of local foreign keys. Status encodes the
// pending relation change: local_edited = assign not yet pushed,
// local_deleted = unassign not yet pushed, up_to_date = in sync.
type CardUser struct {
	CardLocalID int64
	UserLocalID int64
	Status      SyncStatus
}

// CardLabel is a relation row attaching a label to a card, with the
// same status semantics as CardUser.
type CardLabel struct {
	CardLocalID  int64
	LabelLocalID int64
	Status       SyncStatus
}
