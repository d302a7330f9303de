package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/notify"
	"github.com/deckhand/deckhand/internal/remote"
	"github.com/deckhand/deckhand/internal/store"
)

var testClock = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

// fakeAPI is a scriptable in-memory gateway. Listings serve the
// configured snapshots; mutations record themselves and hand out
// server ids.
type fakeAPI struct {
	mu      sync.Mutex
	version string
	boards  []remote.Board
	stacks  map[int64][]remote.Stack // keyed by board remote id
	cards   map[int64][]remote.Card  // keyed by stack remote id
	nextID  int64
	calls   []string

	boardsErr error
	createErr error
	// boardsGate, when set, blocks Boards until the channel closes.
	boardsGate chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		version: "1.12.1",
		stacks:  map[int64][]remote.Stack{},
		cards:   map[int64][]remote.Card{},
		nextID:  100,
	}
}

func (f *fakeAPI) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAPI) id() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *fakeAPI) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeAPI) Capabilities(ctx context.Context) (remote.Capabilities, error) {
	f.record("capabilities")
	return remote.Capabilities{Version: f.version}, nil
}

func (f *fakeAPI) Boards(ctx context.Context, since time.Time) ([]remote.Board, error) {
	if f.boardsGate != nil {
		<-f.boardsGate
	}
	f.record("listBoards")
	if f.boardsErr != nil {
		return nil, f.boardsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Board(nil), f.boards...), nil
}

func (f *fakeAPI) CreateBoard(ctx context.Context, b remote.Board) (remote.Board, error) {
	f.record("createBoard %s", b.Title)
	if f.createErr != nil {
		return remote.Board{}, f.createErr
	}
	b.ID = f.id()
	return b, nil
}

func (f *fakeAPI) UpdateBoard(ctx context.Context, id int64, b remote.Board) (remote.Board, error) {
	f.record("updateBoard %d %s", id, b.Title)
	b.ID = id
	return b, nil
}

func (f *fakeAPI) DeleteBoard(ctx context.Context, id int64) error {
	f.record("deleteBoard %d", id)
	return nil
}

func (f *fakeAPI) Stacks(ctx context.Context, boardID int64, since time.Time) ([]remote.Stack, error) {
	f.record("listStacks %d", boardID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Stack(nil), f.stacks[boardID]...), nil
}

func (f *fakeAPI) CreateStack(ctx context.Context, boardID int64, st remote.Stack) (remote.Stack, error) {
	f.record("createStack %d %s", boardID, st.Title)
	st.ID = f.id()
	return st, nil
}

func (f *fakeAPI) UpdateStack(ctx context.Context, boardID, id int64, st remote.Stack) (remote.Stack, error) {
	f.record("updateStack %d %d", boardID, id)
	st.ID = id
	return st, nil
}

func (f *fakeAPI) DeleteStack(ctx context.Context, boardID, id int64) error {
	f.record("deleteStack %d %d", boardID, id)
	return nil
}

func (f *fakeAPI) Cards(ctx context.Context, boardID, stackID int64, since time.Time) ([]remote.Card, error) {
	f.record("listCards %d %d", boardID, stackID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Card(nil), f.cards[stackID]...), nil
}

func (f *fakeAPI) CreateCard(ctx context.Context, boardID, stackID int64, c remote.Card) (remote.Card, error) {
	f.record("createCard %d %d %s", boardID, stackID, c.Title)
	c.ID = f.id()
	return c, nil
}

func (f *fakeAPI) UpdateCard(ctx context.Context, boardID, stackID, id int64, c remote.Card) (remote.Card, error) {
	f.record("updateCard %d %d %d", boardID, stackID, id)
	c.ID = id
	return c, nil
}

func (f *fakeAPI) DeleteCard(ctx context.Context, boardID, stackID, id int64) error {
	f.record("deleteCard %d %d %d", boardID, stackID, id)
	return nil
}

func (f *fakeAPI) CreateLabel(ctx context.Context, boardID int64, l remote.Label) (remote.Label, error) {
	f.record("createLabel %d %s", boardID, l.Title)
	l.ID = f.id()
	return l, nil
}

func (f *fakeAPI) UpdateLabel(ctx context.Context, boardID, id int64, l remote.Label) (remote.Label, error) {
	f.record("updateLabel %d %d", boardID, id)
	l.ID = id
	return l, nil
}

func (f *fakeAPI) DeleteLabel(ctx context.Context, boardID, id int64) error {
	f.record("deleteLabel %d %d", boardID, id)
	return nil
}

func (f *fakeAPI) AssignUser(ctx context.Context, boardID, stackID, cardID int64, uid string) error {
	f.record("assignUser %d %s", cardID, uid)
	return nil
}

func (f *fakeAPI) UnassignUser(ctx context.Context, boardID, stackID, cardID int64, uid string) error {
	f.record("unassignUser %d %s", cardID, uid)
	return nil
}

func (f *fakeAPI) AssignLabel(ctx context.Context, boardID, stackID, cardID, labelID int64) error {
	f.record("assignLabel %d %d", cardID, labelID)
	return nil
}

func (f *fakeAPI) UnassignLabel(ctx context.Context, boardID, stackID, cardID, labelID int64) error {
	f.record("unassignLabel %d %d", cardID, labelID)
	return nil
}

var _ remote.API = (*fakeAPI)(nil)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "deckhand.db"), notify.NewHub(nil))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func newTestEngine(t *testing.T, st *store.Store, api remote.API) *Engine {
	t.Helper()
	e := New(st, func(*model.Account) remote.API { return api }, &Config{
		Workers:      2,
		SiblingLimit: 2,
		Logger:       log.New(io.Discard, "", 0),
		Clock:        func() time.Time { return testClock },
	})
	t.Cleanup(e.Close)
	return e
}

func seedAccount(t *testing.T, st *store.Store) *model.Account {
	t.Helper()
	a := &model.Account{Name: "work", UserName: "alice", URL: "https://cloud.example.com"}
	if err := st.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return a
}

func syncNow(t *testing.T, e *Engine, accountID int64) error {
	t.Helper()
	ch := make(chan error, 1)
	e.Synchronize(context.Background(), accountID, func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("synchronize did not finish")
		return nil
	}
}

func mutate(t *testing.T, op func(cb func(error))) error {
	t.Helper()
	ch := make(chan error, 1)
	op(func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("mutation did not finish")
		return nil
	}
}

func ptr(v int64) *int64 { return &v }

func TestSynchronize_FirstPullPopulatesStore(t *testing.T) {
	api := newFakeAPI()
	due := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	api.boards = []remote.Board{{
		ID: 7, Title: "Sprint", Color: "0082C9",
		Labels: []remote.Label{{ID: 40, Title: "bug", Color: "FF0000"}},
		Users:  []remote.User{{UID: "bob", DisplayName: "Bob"}},
	}}
	api.stacks[7] = []remote.Stack{{ID: 3, BoardID: 7, Title: "Doing", Order: 1}}
	api.cards[3] = []remote.Card{{
		ID: 9, StackID: 3, Title: "Fix login", Description: "urgent", Order: 0, DueDate: &due,
		AssignedUsers: []remote.User{{UID: "bob", DisplayName: "Bob"}},
		Labels:        []remote.Label{{ID: 40}},
	}}

	st := newTestStore(t)
	a := seedAccount(t, st)
	e := newTestEngine(t, st, api)
	ctx := context.Background()

	if err := syncNow(t, e, a.ID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	boards, err := st.ListAllBoards(ctx, a.ID)
	if err != nil || len(boards) != 1 {
		t.Fatalf("boards = %v (err %v), want 1", boards, err)
	}
	board := boards[0]
	if board.Status != model.StatusUpToDate || board.RemoteID == nil || *board.RemoteID != 7 {
		t.Errorf("board = %+v, want up to date with remote id 7", board.Synced)
	}

	stacks, err := st.ListAllStacksForBoard(ctx, board.LocalID)
	if err != nil || len(stacks) != 1 || stacks[0].Title != "Doing" {
		t.Fatalf("stacks = %v (err %v), want Doing", stacks, err)
	}

	cards, err := st.ListAllCardsForStack(ctx, stacks[0].LocalID)
	if err != nil || len(cards) != 1 {
		t.Fatalf("cards = %v (err %v), want 1", cards, err)
	}
	card := cards[0]
	if card.Title != "Fix login" || card.DueDate == nil || !card.DueDate.Equal(due) {
		t.Errorf("card = %+v, want Fix login due %v", card, due)
	}

	users, err := st.ListUsersForCard(ctx, card.LocalID)
	if err != nil || len(users) != 1 || users[0].UID != "bob" {
		t.Errorf("card users = %v (err %v), want bob", users, err)
	}
	labels, err := st.ListLabelsForCard(ctx, card.LocalID)
	if err != nil || len(labels) != 1 || labels[0].Title != "bug" {
		t.Errorf("card labels = %v (err %v), want bug", labels, err)
	}

	got, err := st.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !got.LastSync.Equal(testClock) {
		t.Errorf("watermark = %v, want %v", got.LastSync, testClock)
	}
}

func TestSynchronize_VersionGateBlocksFirstSync(t *testing.T) {
	api := newFakeAPI()
	api.version = "0.9.0"

	st := newTestStore(t)
	a := seedAccount(t, st)
	e := newTestEngine(t, st, api)

	if err := syncNow(t, e, a.ID); err == nil {
		t.Fatal("sync against an unsupported server must fail")
	}
	if api.callCount("listBoards") != 0 {
		t.Error("no listing may happen when the version gate fails")
	}
	got, _ := st.GetAccount(context.Background(), a.ID)
	if !got.LastSync.IsZero() {
		t.Errorf("watermark = %v, want zero", got.LastSync)
	}
}

func TestPull_LocalEditsWin(t *testing.T) {
	api := newFakeAPI()
	api.boards = []remote.Board{{ID: 7, Title: "Theirs", Color: "000000"}}

	st := newTestStore(t)
	a := seedAccount(t, st)
	e := newTestEngine(t, st, api)
	ctx := context.Background()

	local := &model.Board{
		Synced: model.Synced{RemoteID: ptr(7), AccountID: a.ID, Status: model.StatusLocalEdited},
		Title:  "Mine", Color: "FFFFFF",
	}
	if err := st.CreateBoard(ctx, local); err != nil {
		t.Fatalf("seed board: %v", err)
	}

	if err := e.pullAccount(ctx, api, a); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	got, err := st.GetBoard(ctx, local.LocalID)
	if err != nil {
		t.Fatalf("GetBoard failed: %v", err)
	}
	if got.Title != "Mine" || got.Status != model.StatusLocalEdited {
		t.Errorf("board = %q/%s, pending local edit must survive the pull", got.Title, got.Status)
	}
}

func TestPull_OmissionPurgesSyncedScope(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	ctx := context.Background()

	board := &model.Board{
		Synced: model.Synced{RemoteID: ptr(7), AccountID: a.ID, Status: model.StatusUpToDate},
		Title:  "Old",
	}
	if err := st.CreateBoard(ctx, board); err != nil {
		t.Fatal(err)
	}
	stack := &model.Stack{
		Synced:       model.Synced{RemoteID: ptr(3), AccountID: a.ID, Status: model.StatusUpToDate},
		BoardLocalID: board.LocalID, Title: "Doing",
	}
	if err := st.CreateStack(ctx, stack); err != nil {
		t.Fatal(err)
	}

	api := newFakeAPI() // server lists nothing
	e := newTestEngine(t, st, api)

	if err := e.pullAccount(ctx, api, a); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	if _, err := st.GetBoard(ctx, board.LocalID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("omitted board still present (err %v)", err)
	}
	if _, err := st.GetStack(ctx, stack.LocalID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("purge did not cascade to the stack (err %v)", err)
	}
}

func TestPull_OmissionSparesPendingRows(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	ctx := context.Background()

	pending := &model.Board{
		Synced: model.Synced{RemoteID: ptr(7), AccountID: a.ID, Status: model.StatusLocalDeleted},
		Title:  "Tombstone",
	}
	unpushed := &model.Board{
		Synced: model.Synced{AccountID: a.ID, Status: model.StatusLocalEdited},
		Title:  "Draft",
	}
	for _, b := range []*model.Board{pending, unpushed} {
		if err := st.CreateBoard(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	api := newFakeAPI()
	e := newTestEngine(t, st, api)

	if err := e.pullAccount(ctx, api, a); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	boards, err := st.ListAllBoards(ctx, a.ID)
	if err != nil || len(boards) != 2 {
		t.Errorf("boards = %v (err %v), pending rows must survive omission", boards, err)
	}
}

func TestSynchronize_WatermarkFrozenOnPullFailure(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	ctx := context.Background()

	old := testClock.Add(-24 * time.Hour)
	if err := st.SetLastSync(ctx, a.ID, old); err != nil {
		t.Fatal(err)
	}

	api := newFakeAPI()
	api.boardsErr = &remote.TransportError{Op: "listBoards", Status: 503}
	e := newTestEngine(t, st, api)

	if err := syncNow(t, e, a.ID); err == nil {
		t.Fatal("sync must report the pull failure")
	}

	got, _ := st.GetAccount(ctx, a.ID)
	if !got.LastSync.Equal(old) {
		t.Errorf("watermark = %v, want frozen at %v", got.LastSync, old)
	}
}

func TestSynchronize_WatermarkAdvancesWhenOnlyPushFails(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	ctx := context.Background()
	if err := st.SetLastSync(ctx, a.ID, testClock.Add(-24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	draft := &model.Board{
		Synced: model.Synced{AccountID: a.ID, Status: model.StatusLocalEdited},
		Title:  "Draft",
	}
	if err := st.CreateBoard(ctx, draft); err != nil {
		t.Fatal(err)
	}

	api := newFakeAPI()
	api.createErr = &remote.TransportError{Op: "createBoard", Status: 500}
	e := newTestEngine(t, st, api)

	if err := syncNow(t, e, a.ID); err == nil {
		t.Fatal("sync must report the push failure")
	}

	got, _ := st.GetAccount(ctx, a.ID)
	if !got.LastSync.Equal(testClock) {
		t.Errorf("watermark = %v, a push failure must not block it", got.LastSync)
	}
	// The failed push leaves the change pending for the next run.
	b, _ := st.GetBoard(ctx, draft.LocalID)
	if b.Status != model.StatusLocalEdited {
		t.Errorf("board status = %s, want still pending", b.Status)
	}
}

func TestSynchronize_PushCreatesScopeTopDown(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	ctx := context.Background()

	board := &model.Board{
		Synced: model.Synced{AccountID: a.ID, Status: model.StatusLocalEdited},
		Title:  "Sprint",
	}
	if err := st.CreateBoard(ctx, board); err != nil {
		t.Fatal(err)
	}
	stack := &model.Stack{
		Synced:       model.Synced{AccountID: a.ID, Status: model.StatusLocalEdited},
		BoardLocalID: board.LocalID, Title: "Doing",
	}
	if err := st.CreateStack(ctx, stack); err != nil {
		t.Fatal(err)
	}
	card := &model.Card{
		Synced:       model.Synced{AccountID: a.ID, Status: model.StatusLocalEdited},
		StackLocalID: stack.LocalID, Title: "Fix login",
	}
	if err := st.CreateCard(ctx, card); err != nil {
		t.Fatal(err)
	}

	api := newFakeAPI()
	e := newTestEngine(t, st, api)

	if err := syncNow(t, e, a.ID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	for name, n := range map[string]int{"createBoard": 1, "createStack": 1, "createCard": 1} {
		if got := api.callCount(name); got != n {
			t.Errorf("%s calls = %d, want %d", name, got, n)
		}
	}

	b, _ := st.GetBoard(ctx, board.LocalID)
	s, _ := st.GetStack(ctx, stack.LocalID)
	c, _ := st.GetCard(ctx, card.LocalID)
	for _, row := range []model.Synced{b.Synced, s.Synced, c.Synced} {
		if row.RemoteID == nil || row.Status != model.StatusUpToDate {
			t.Errorf("row = %+v, want pushed with a remote id", row)
		}
	}
}

func TestSynchronize_PushDeleteUnpublishesThenPurges(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	ctx := context.Background()

	board := &model.Board{
		Synced: model.Synced{RemoteID: ptr(7), AccountID: a.ID, Status: model.StatusUpToDate},
		Title:  "Sprint",
	}
	if err := st.CreateBoard(ctx, board); err != nil {
		t.Fatal(err)
	}
	stack := &model.Stack{
		Synced:       model.Synced{RemoteID: ptr(3), AccountID: a.ID, Status: model.StatusUpToDate},
		BoardLocalID: board.LocalID, Title: "Doing",
	}
	if err := st.CreateStack(ctx, stack); err != nil {
		t.Fatal(err)
	}
	card := &model.Card{
		Synced:       model.Synced{RemoteID: ptr(9), AccountID: a.ID, Status: model.StatusLocalDeleted},
		StackLocalID: stack.LocalID, Title: "Fix login",
	}
	if err := st.CreateCard(ctx, card); err != nil {
		t.Fatal(err)
	}

	api := newFakeAPI()
	api.boards = []remote.Board{{ID: 7, Title: "Sprint"}}
	api.stacks[7] = []remote.Stack{{ID: 3, BoardID: 7, Title: "Doing"}}
	api.cards[3] = []remote.Card{{ID: 9, StackID: 3, Title: "Fix login"}}
	e := newTestEngine(t, st, api)

	if err := syncNow(t, e, a.ID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if api.callCount("deleteCard") != 1 {
		t.Errorf("deleteCard calls = %d, want 1", api.callCount("deleteCard"))
	}
	if _, err := st.GetCard(ctx, card.LocalID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted card still present (err %v)", err)
	}
}

func TestSynchronize_PushFlushesPendingRelations(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	ctx := context.Background()

	board := &model.Board{
		Synced: model.Synced{RemoteID: ptr(7), AccountID: a.ID, Status: model.StatusUpToDate},
		Title:  "Sprint",
	}
	if err := st.CreateBoard(ctx, board); err != nil {
		t.Fatal(err)
	}
	stack := &model.Stack{
		Synced:       model.Synced{RemoteID: ptr(3), AccountID: a.ID, Status: model.StatusUpToDate},
		BoardLocalID: board.LocalID, Title: "Doing",
	}
	if err := st.CreateStack(ctx, stack); err != nil {
		t.Fatal(err)
	}
	card := &model.Card{
		Synced:       model.Synced{RemoteID: ptr(9), AccountID: a.ID, Status: model.StatusUpToDate},
		StackLocalID: stack.LocalID, Title: "Fix login",
	}
	if err := st.CreateCard(ctx, card); err != nil {
		t.Fatal(err)
	}
	user := &model.User{
		Synced: model.Synced{AccountID: a.ID, Status: model.StatusUpToDate},
		UID:    "bob", DisplayName: "Bob",
	}
	if err := st.UpsertUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	label := &model.Label{
		Synced:       model.Synced{AccountID: a.ID, Status: model.StatusLocalEdited},
		BoardLocalID: board.LocalID, Title: "bug", Color: "FF0000",
	}
	if err := st.CreateLabel(ctx, label); err != nil {
		t.Fatal(err)
	}
	if err := st.SetCardUser(ctx, &model.CardUser{CardLocalID: card.LocalID, UserLocalID: user.LocalID, Status: model.StatusLocalEdited}); err != nil {
		t.Fatal(err)
	}
	if err := st.SetCardLabel(ctx, &model.CardLabel{CardLocalID: card.LocalID, LabelLocalID: label.LocalID, Status: model.StatusLocalEdited}); err != nil {
		t.Fatal(err)
	}

	api := newFakeAPI()
	api.boards = []remote.Board{{ID: 7, Title: "Sprint", Users: []remote.User{{UID: "bob", DisplayName: "Bob"}}}}
	api.stacks[7] = []remote.Stack{{ID: 3, BoardID: 7, Title: "Doing"}}
	api.cards[3] = []remote.Card{{ID: 9, StackID: 3, Title: "Fix login"}}
	e := newTestEngine(t, st, api)

	if err := syncNow(t, e, a.ID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// The unpushed label goes up first so the assignment can name its
	// server id.
	if api.callCount("createLabel") != 1 || api.callCount("assignLabel") != 1 {
		t.Errorf("label calls = %v, want one create and one assign", api.calls)
	}
	if api.callCount("assignUser") != 1 {
		t.Errorf("assignUser calls = %d, want 1", api.callCount("assignUser"))
	}

	userJoins, _ := st.ListCardUsers(ctx, card.LocalID)
	labelJoins, _ := st.ListCardLabels(ctx, card.LocalID)
	if len(userJoins) != 1 || userJoins[0].Status != model.StatusUpToDate {
		t.Errorf("user join = %v, want up to date", userJoins)
	}
	if len(labelJoins) != 1 || labelJoins[0].Status != model.StatusUpToDate {
		t.Errorf("label join = %v, want up to date", labelJoins)
	}
}

func TestSynchronize_CoalescesConcurrentRequests(t *testing.T) {
	api := newFakeAPI()
	api.boardsGate = make(chan struct{})

	st := newTestStore(t)
	a := seedAccount(t, st)
	e := newTestEngine(t, st, api)

	first := make(chan error, 1)
	second := make(chan error, 1)
	e.Synchronize(context.Background(), a.ID, func(err error) { first <- err })
	e.Synchronize(context.Background(), a.ID, func(err error) { second <- err })
	close(api.boardsGate)

	for _, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			if err != nil {
				t.Errorf("coalesced sync failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("coalesced callback never fired")
		}
	}
	if got := api.callCount("listBoards"); got != 1 {
		t.Errorf("listBoards calls = %d, want exactly one pass", got)
	}
}

func TestSynchronize_FullQueueDoesNotBlockCompletions(t *testing.T) {
	api := newFakeAPI()
	api.boardsGate = make(chan struct{})

	st := newTestStore(t)
	e := New(st, func(*model.Account) remote.API { return api }, &Config{
		Workers: 1, SiblingLimit: 1, Logger: log.New(io.Discard, "", 0), Clock: func() time.Time { return testClock },
	})
	t.Cleanup(e.Close)

	// More accounts than the job buffer holds, so late submissions have
	// to wait for workers to drain the queue. Completions must still be
	// able to take the engine lock while those submissions wait.
	const accounts = 70
	ids := make([]int64, 0, accounts)
	for i := 0; i < accounts; i++ {
		a := &model.Account{
			Name:     fmt.Sprintf("acct%02d", i),
			UserName: "alice",
			URL:      "https://cloud.example.com",
		}
		if err := st.CreateAccount(context.Background(), a); err != nil {
			t.Fatalf("failed to seed account: %v", err)
		}
		ids = append(ids, a.ID)
	}

	results := make(chan error, accounts)
	for _, id := range ids {
		go e.Synchronize(context.Background(), id, func(err error) { results <- err })
	}

	time.Sleep(100 * time.Millisecond)
	close(api.boardsGate)

	for i := 0; i < accounts; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("sync failed: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("synchronizations stalled")
		}
	}
}

func TestSynchronize_AfterClose(t *testing.T) {
	st := newTestStore(t)
	a := seedAccount(t, st)
	e := New(st, func(*model.Account) remote.API { return newFakeAPI() }, &Config{
		Workers: 1, SiblingLimit: 1, Logger: log.New(io.Discard, "", 0), Clock: func() time.Time { return testClock },
	})
	e.Close()

	if err := syncNow(t, e, a.ID); !errors.Is(err, ErrClosed) {
		t.Errorf("sync after close = %v, want ErrClosed", err)
	}
}
