package model

import (
	"testing"
	"time"
)

func TestSyncStatus_Valid(t *testing.T) {
	for _, s := range []SyncStatus{StatusUpToDate, StatusLocalEdited, StatusLocalDeleted} {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if SyncStatus("deleted").Valid() {
		t.Error("unknown status should not be valid")
	}
	if SyncStatus("").Valid() {
		t.Error("empty status should not be valid")
	}
}

func TestSyncStatus_Pending(t *testing.T) {
	if StatusUpToDate.Pending() {
		t.Error("up_to_date must not be pending")
	}
	if !StatusLocalEdited.Pending() {
		t.Error("local_edited must be pending")
	}
	if !StatusLocalDeleted.Pending() {
		t.Error("local_deleted must be pending")
	}
}

func TestSynced_MarkEdited(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := Synced{Status: StatusUpToDate}

	s.MarkEdited(now)

	if s.Status != StatusLocalEdited {
		t.Errorf("status = %q, want %q", s.Status, StatusLocalEdited)
	}
	if !s.LastModifiedLocal.Equal(now) {
		t.Errorf("last modified = %v, want %v", s.LastModifiedLocal, now)
	}
}

func TestSynced_MarkDeleted(t *testing.T) {
	now := time.Now()
	s := Synced{Status: StatusLocalEdited}

	s.MarkDeleted(now)

	if s.Status != StatusLocalDeleted {
		t.Errorf("status = %q, want %q", s.Status, StatusLocalDeleted)
	}
}

func TestBoard_Validate(t *testing.T) {
	b := &Board{Synced: Synced{AccountID: 1}, Title: "Sprint"}
	if err := b.Validate(); err != nil {
		t.Errorf("valid board rejected: %v", err)
	}

	if err := (&Board{Synced: Synced{AccountID: 1}}).Validate(); err == nil {
		t.Error("board without title should be rejected")
	}
	if err := (&Board{Title: "Sprint"}).Validate(); err == nil {
		t.Error("board without account should be rejected")
	}
}

func TestAccount_Validate(t *testing.T) {
	a := &Account{Name: "work", UserName: "alice", URL: "https://cloud.example.org"}
	if err := a.Validate(); err != nil {
		t.Errorf("valid account rejected: %v", err)
	}
	if err := (&Account{Name: "work", UserName: "alice"}).Validate(); err == nil {
		t.Error("account without url should be rejected")
	}
}
