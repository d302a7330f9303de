// Package remote is the HTTP gateway to the board server.
//
// The client wraps every call with the account's base URL, basic auth,
// and a conditional since header carrying the caller's watermark as an
// HTTP-date in GMT. Failures are typed: ErrOffline from the guard,
// TransportError for network and HTTP failures, DecodeError for
// unreadable responses. There is no retry at this layer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const apiPath = "/index.php/apps/deck/api/v1.0"

// minServerVersion is the oldest server API version this client can
// sync against.
const minServerVersion = "1.0.0"

// sinceHeader is the conditional header carrying the watermark.
const sinceHeader = "If-Modified-Since"

// The server expects a bare GMT date; strip any numeric UTC offset a
// formatter may append.
var offsetSuffix = regexp.MustCompile(`\s*\+[0-9]{2}:?[0-9]{2}$`)

// FormatSince renders a watermark as the server's since header value.
// The zero time renders empty, meaning no header (full, unconditioned
// listing).
func FormatSince(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return offsetSuffix.ReplaceAllString(t.UTC().Format(http.TimeFormat), "")
}

// Config carries the per-account connection settings.
type Config struct {
	// BaseURL is the server root, e.g. https://cloud.example.com.
	BaseURL string
	// UserName and Password authenticate every request (basic auth with
	// an app password).
	UserName string
	Password string
	// Timeout bounds each HTTP call. Zero means 15 seconds.
	Timeout time.Duration
}

// Client implements API over HTTP for one account.
type Client struct {
	cfg    Config
	hc     *http.Client
	conn   Connectivity
	logger *log.Logger
}

var _ API = (*Client)(nil)

// NewClient builds a gateway client. If conn is nil the interface-based
// connectivity check is used; if logger is nil a stderr logger is used.
func NewClient(cfg Config, conn Connectivity, logger *log.Logger) *Client {
	to := cfg.Timeout
	if to == 0 {
		to = 15 * time.Second
	}
	if conn == nil {
		conn = InterfaceConnectivity{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		cfg:    Config{BaseURL: strings.TrimRight(cfg.BaseURL, "/"), UserName: cfg.UserName, Password: cfg.Password, Timeout: to},
		hc:     &http.Client{Timeout: to},
		conn:   conn,
		logger: logger,
	}
}

// ensureOnline is the offline guard: every mutating call runs it before
// touching the network. Listing calls skip it so cached data can still
// be served and the transport failure surfaces naturally.
func (c *Client) ensureOnline() error {
	if !c.conn.Online() {
		return ErrOffline
	}
	return nil
}

// CheckVersion verifies the server speaks a supported API version.
func CheckVersion(version string) error {
	v := "v" + strings.TrimPrefix(version, "v")
	if !semver.IsValid(v) {
		return fmt.Errorf("server reported invalid version %q", version)
	}
	if semver.Compare(v, "v"+minServerVersion) < 0 {
		return fmt.Errorf("server version %s is older than minimum supported %s", version, minServerVersion)
	}
	return nil
}

// do performs one HTTP round trip. At most one network call per
// invocation; no retries.
func (c *Client) do(ctx context.Context, op, method, path string, since time.Time, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+apiPath+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.SetBasicAuth(c.cfg.UserName, c.cfg.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s := FormatSince(since); s != "" {
		req.Header.Set(sinceHeader, s)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		c.logger.Printf("%s: server returned %d", op, resp.StatusCode)
		return &TransportError{Op: op, Status: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &DecodeError{Op: op, Err: err}
		}
	}
	return nil
}

func (c *Client) Capabilities(ctx context.Context) (Capabilities, error) {
	var out Capabilities
	err := c.do(ctx, "capabilities", http.MethodGet, "/config", time.Time{}, nil, &out)
	return out, err
}

func (c *Client) Boards(ctx context.Context, since time.Time) ([]Board, error) {
	var out []Board
	err := c.do(ctx, "listBoards", http.MethodGet, "/boards?details=true", since, nil, &out)
	return out, err
}

func (c *Client) CreateBoard(ctx context.Context, b Board) (Board, error) {
	if err := c.ensureOnline(); err != nil {
		return Board{}, err
	}
	var out Board
	err := c.do(ctx, "createBoard", http.MethodPost, "/boards", time.Time{}, b, &out)
	return out, err
}

func (c *Client) UpdateBoard(ctx context.Context, id int64, b Board) (Board, error) {
	if err := c.ensureOnline(); err != nil {
		return Board{}, err
	}
	var out Board
	err := c.do(ctx, "updateBoard", http.MethodPut, fmt.Sprintf("/boards/%d", id), time.Time{}, b, &out)
	return out, err
}

func (c *Client) DeleteBoard(ctx context.Context, id int64) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	return c.do(ctx, "deleteBoard", http.MethodDelete, fmt.Sprintf("/boards/%d", id), time.Time{}, nil, nil)
}

func (c *Client) Stacks(ctx context.Context, boardID int64, since time.Time) ([]Stack, error) {
	var out []Stack
	err := c.do(ctx, "listStacks", http.MethodGet, fmt.Sprintf("/boards/%d/stacks", boardID), since, nil, &out)
	return out, err
}

func (c *Client) CreateStack(ctx context.Context, boardID int64, st Stack) (Stack, error) {
	if err := c.ensureOnline(); err != nil {
		return Stack{}, err
	}
	var out Stack
	err := c.do(ctx, "createStack", http.MethodPost, fmt.Sprintf("/boards/%d/stacks", boardID), time.Time{}, st, &out)
	return out, err
}

func (c *Client) UpdateStack(ctx context.Context, boardID, id int64, st Stack) (Stack, error) {
	if err := c.ensureOnline(); err != nil {
		return Stack{}, err
	}
	var out Stack
	err := c.do(ctx, "updateStack", http.MethodPut, fmt.Sprintf("/boards/%d/stacks/%d", boardID, id), time.Time{}, st, &out)
	return out, err
}

func (c *Client) DeleteStack(ctx context.Context, boardID, id int64) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	return c.do(ctx, "deleteStack", http.MethodDelete, fmt.Sprintf("/boards/%d/stacks/%d", boardID, id), time.Time{}, nil, nil)
}

func (c *Client) Cards(ctx context.Context, boardID, stackID int64, since time.Time) ([]Card, error) {
	var out []Card
	err := c.do(ctx, "listCards", http.MethodGet,
		fmt.Sprintf("/boards/%d/stacks/%d/cards", boardID, stackID), since, nil, &out)
	return out, err
}

func (c *Client) CreateCard(ctx context.Context, boardID, stackID int64, card Card) (Card, error) {
	if err := c.ensureOnline(); err != nil {
		return Card{}, err
	}
	var out Card
	err := c.do(ctx, "createCard", http.MethodPost,
		fmt.Sprintf("/boards/%d/stacks/%d/cards", boardID, stackID), time.Time{}, card, &out)
	return out, err
}

func (c *Client) UpdateCard(ctx context.Context, boardID, stackID, id int64, card Card) (Card, error) {
	if err := c.ensureOnline(); err != nil {
		return Card{}, err
	}
	var out Card
	err := c.do(ctx, "updateCard", http.MethodPut,
		fmt.Sprintf("/boards/%d/stacks/%d/cards/%d", boardID, stackID, id), time.Time{}, card, &out)
	return out, err
}

func (c *Client) DeleteCard(ctx context.Context, boardID, stackID, id int64) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	return c.do(ctx, "deleteCard", http.MethodDelete,
		fmt.Sprintf("/boards/%d/stacks/%d/cards/%d", boardID, stackID, id), time.Time{}, nil, nil)
}

func (c *Client) CreateLabel(ctx context.Context, boardID int64, l Label) (Label, error) {
	if err := c.ensureOnline(); err != nil {
		return Label{}, err
	}
	var out Label
	err := c.do(ctx, "createLabel", http.MethodPost, fmt.Sprintf("/boards/%d/labels", boardID), time.Time{}, l, &out)
	return out, err
}

func (c *Client) UpdateLabel(ctx context.Context, boardID, id int64, l Label) (Label, error) {
	if err := c.ensureOnline(); err != nil {
		return Label{}, err
	}
	var out Label
	err := c.do(ctx, "updateLabel", http.MethodPut, fmt.Sprintf("/boards/%d/labels/%d", boardID, id), time.Time{}, l, &out)
	return out, err
}

func (c *Client) DeleteLabel(ctx context.Context, boardID, id int64) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	return c.do(ctx, "deleteLabel", http.MethodDelete, fmt.Sprintf("/boards/%d/labels/%d", boardID, id), time.Time{}, nil, nil)
}

func (c *Client) AssignUser(ctx context.Context, boardID, stackID, cardID int64, uid string) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	body := map[string]string{"userId": uid}
	return c.do(ctx, "assignUser", http.MethodPut,
		fmt.Sprintf("/boards/%d/stacks/%d/cards/%d/assignUser", boardID, stackID, cardID), time.Time{}, body, nil)
}

func (c *Client) UnassignUser(ctx context.Context, boardID, stackID, cardID int64, uid string) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	body := map[string]string{"userId": uid}
	return c.do(ctx, "unassignUser", http.MethodPut,
		fmt.Sprintf("/boards/%d/stacks/%d/cards/%d/unassignUser", boardID, stackID, cardID), time.Time{}, body, nil)
}

func (c *Client) AssignLabel(ctx context.Context, boardID, stackID, cardID, labelID int64) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	body := map[string]int64{"labelId": labelID}
	return c.do(ctx, "assignLabel", http.MethodPut,
		fmt.Sprintf("/boards/%d/stacks/%d/cards/%d/assignLabel", boardID, stackID, cardID), time.Time{}, body, nil)
}

func (c *Client) UnassignLabel(ctx context.Context, boardID, stackID, cardID, labelID int64) error {
	if err := c.ensureOnline(); err != nil {
		return err
	}
	body := map[string]int64{"labelId": labelID}
	return c.do(ctx, "unassignLabel", http.MethodPut,
		fmt.Sprintf("/boards/%d/stacks/%d/cards/%d/removeLabel", boardID, stackID, cardID), time.Time{}, body, nil)
}
