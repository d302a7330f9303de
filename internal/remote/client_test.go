package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// offline is a Connectivity stub that also counts guard checks.
type offline struct{ checks *int }

func (o offline) Online() bool {
	if o.checks != nil {
		*o.checks++
	}
	return false
}

func TestFormatSince(t *testing.T) {
	if got := FormatSince(time.Time{}); got != "" {
		t.Errorf("zero watermark = %q, want empty", got)
	}

	mark := time.Date(2026, 8, 20, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	got := FormatSince(mark)
	if !strings.HasSuffix(got, "GMT") {
		t.Errorf("since header %q must be a GMT date", got)
	}
	if strings.Contains(got, "+") {
		t.Errorf("since header %q must not carry a numeric offset", got)
	}
	if !strings.Contains(got, "07:30:00") {
		t.Errorf("since header %q not converted to UTC", got)
	}
}

func TestCheckVersion(t *testing.T) {
	if err := CheckVersion("1.0.0"); err != nil {
		t.Errorf("minimum version rejected: %v", err)
	}
	if err := CheckVersion("1.12.1"); err != nil {
		t.Errorf("newer version rejected: %v", err)
	}
	if err := CheckVersion("0.9.9"); err == nil {
		t.Error("older version accepted")
	}
	if err := CheckVersion("not-a-version"); err == nil {
		t.Error("garbage version accepted")
	}
}

func TestBoards_SendsAuthAndSinceHeader(t *testing.T) {
	mark := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			t.Errorf("basic auth = %q/%q, want alice/secret", user, pass)
		}
		if got := r.Header.Get("If-Modified-Since"); got != FormatSince(mark) {
			t.Errorf("since header = %q, want %q", got, FormatSince(mark))
		}
		if !strings.HasPrefix(r.URL.Path, "/index.php/apps/deck/api/v1.0/boards") {
			t.Errorf("path = %q, want the api prefix", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 5, "title": "Sprint", "color": "0082C9"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, UserName: "alice", Password: "secret"}, AlwaysOnline{}, nil)

	boards, err := c.Boards(context.Background(), mark)
	if err != nil {
		t.Fatalf("Boards() failed: %v", err)
	}
	if len(boards) != 1 || boards[0].ID != 5 || boards[0].Title != "Sprint" {
		t.Errorf("boards = %+v, want the Sprint board", boards)
	}
}

func TestBoards_NoSinceHeaderOnFirstSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, present := r.Header["If-Modified-Since"]; present {
			t.Error("zero watermark must not send a since header")
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, AlwaysOnline{}, nil)
	if _, err := c.Boards(context.Background(), time.Time{}); err != nil {
		t.Fatalf("Boards() failed: %v", err)
	}
}

func TestDo_HTTPErrorBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, AlwaysOnline{}, nil)
	_, err := c.Boards(context.Background(), time.Time{})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if te.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", te.Status)
	}
	if !IsTransportFailure(err) {
		t.Error("HTTP failure must count as a transport failure")
	}
}

func TestDo_BadJSONBecomesDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, AlwaysOnline{}, nil)
	_, err := c.Boards(context.Background(), time.Time{})

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want DecodeError", err)
	}
	if !IsTransportFailure(err) {
		t.Error("decode failure must count as a transport failure")
	}
}

func TestMutations_OfflineGuardSkipsNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	checks := 0
	c := NewClient(Config{BaseURL: srv.URL}, offline{checks: &checks}, nil)
	ctx := context.Background()

	if _, err := c.CreateBoard(ctx, Board{Title: "x"}); !errors.Is(err, ErrOffline) {
		t.Errorf("CreateBoard offline: got %v, want ErrOffline", err)
	}
	if err := c.DeleteCard(ctx, 1, 2, 3); !errors.Is(err, ErrOffline) {
		t.Errorf("DeleteCard offline: got %v, want ErrOffline", err)
	}
	if err := c.AssignUser(ctx, 1, 2, 3, "alice"); !errors.Is(err, ErrOffline) {
		t.Errorf("AssignUser offline: got %v, want ErrOffline", err)
	}

	if calls != 0 {
		t.Errorf("server saw %d calls while offline, want 0", calls)
	}
	if checks != 3 {
		t.Errorf("guard ran %d times, want 3", checks)
	}
	if !IsTransportFailure(ErrOffline) {
		t.Error("offline must count as a transport failure")
	}
}

func TestListings_SkipOfflineGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	// Listings reach the transport even when the guard says offline;
	// the failure, if any, surfaces as a TransportError instead.
	c := NewClient(Config{BaseURL: srv.URL}, offline{}, nil)
	if _, err := c.Stacks(context.Background(), 1, time.Time{}); err != nil {
		t.Errorf("Stacks() should bypass the guard, got %v", err)
	}
}

func TestAssignLabel_UsesRemoveLabelRoute(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, AlwaysOnline{}, nil)
	ctx := context.Background()

	if err := c.AssignLabel(ctx, 1, 2, 3, 9); err != nil {
		t.Fatalf("AssignLabel() failed: %v", err)
	}
	if err := c.UnassignLabel(ctx, 1, 2, 3, 9); err != nil {
		t.Fatalf("UnassignLabel() failed: %v", err)
	}

	if len(paths) != 2 ||
		!strings.HasSuffix(paths[0], "/cards/3/assignLabel") ||
		!strings.HasSuffix(paths[1], "/cards/3/removeLabel") {
		t.Errorf("paths = %v, want assignLabel then removeLabel", paths)
	}
}
