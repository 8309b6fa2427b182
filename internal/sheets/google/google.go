package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	ports "tagihanair/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options selects the spreadsheet and the service account used to reach it.
// ServiceAccountJSON takes precedence over ServiceAccountFile.
type Options struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// Client is a Workbook backed by the Google Sheets API.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu    sync.Mutex
	known map[string]struct{}
}

var _ ports.Workbook = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	id := strings.TrimSpace(opts.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, id), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, known: map[string]struct{}{}}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	inline := strings.TrimSpace(opts.ServiceAccountJSON)
	file := strings.TrimSpace(opts.ServiceAccountFile)

	var credentialsJSON []byte
	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials", "json_length", len(inline))
		credentialsJSON = []byte(inline)
	case file != "":
		slog.InfoContext(ctx, "Reading service account credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	authed, err := htransport.NewTransport(ctx, newPooledTransport(),
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("authorize service account: %w", err)
	}
	client := &http.Client{Transport: authed, Timeout: 60 * time.Second}

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// newPooledTransport is the base transport under the OAuth2 layer: bounded
// timeouts and a small idle pool for the Sheets API host.
func newPooledTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// Worksheet returns the named tab, checking that it exists.
func (c *Client) Worksheet(ctx context.Context, name string) (ports.Worksheet, error) {
	if c.svc == nil {
		return nil, fmt.Errorf("sheets service not initialized: %w", ports.ErrUnavailable)
	}
	c.mu.Lock()
	_, ok := c.known[name]
	c.mu.Unlock()
	if ok {
		return &worksheet{client: c, name: name}, nil
	}

	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Sprintf("list worksheets of %s", c.spreadsheetID), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = struct{}{}
		}
	}
	if _, ok := c.known[name]; !ok {
		return nil, fmt.Errorf("%q: %w", name, ports.ErrWorksheetNotFound)
	}
	return &worksheet{client: c, name: name}, nil
}

// forget drops a cached tab name after the API reports it missing.
func (c *Client) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.known, name)
}

type worksheet struct {
	client *Client
	name   string
}

func (w *worksheet) Name() string { return w.name }

func (w *worksheet) ReadAll(ctx context.Context) ([][]string, error) {
	rng := quoteSheet(w.name)
	resp, err := w.client.svc.Spreadsheets.Values.Get(w.client.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return nil, w.fail("read "+rng, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

func (w *worksheet) AppendRow(ctx context.Context, values []any) error {
	rng := quoteSheet(w.name) + "!A1"
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := w.client.svc.Spreadsheets.Values.Append(w.client.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return w.fail("append to "+w.name, err)
	}
	return nil
}

func (w *worksheet) UpdateRow(ctx context.Context, row int, values []any) error {
	if row < 1 || len(values) == 0 {
		return fmt.Errorf("update %s: invalid row %d with %d values", w.name, row, len(values))
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", quoteSheet(w.name), row, columnLetter(len(values)), row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := w.client.svc.Spreadsheets.Values.Update(w.client.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return w.fail("update "+rng, err)
	}
	return nil
}

func (w *worksheet) UpdateCell(ctx context.Context, row, col int, value any) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("update %s: invalid cell %d,%d", w.name, row, col)
	}
	rng := fmt.Sprintf("%s!%s%d", quoteSheet(w.name), columnLetter(col), row)
	vr := &gsheet.ValueRange{Values: [][]any{{value}}}
	_, err := w.client.svc.Spreadsheets.Values.Update(w.client.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return w.fail("update "+rng, err)
	}
	return nil
}

func (w *worksheet) fail(op string, err error) error {
	err = classify(op, err)
	if errors.Is(err, ports.ErrWorksheetNotFound) {
		w.client.forget(w.name)
	}
	return err
}

// classify maps API failures onto the port errors. HTTP errors returned by
// the API keep their message; transport failures become ErrUnavailable.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", op, ports.ErrWorksheetNotFound, err)
		case gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"):
			return fmt.Errorf("%s: %w: %v", op, ports.ErrWorksheetNotFound, err)
		case gerr.Code >= 500 || gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, ports.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ports.ErrUnavailable, err)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(x)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(x))
		}
	}
	return out
}

// quoteSheet renders a tab name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// columnLetter converts a 1-based column number to its A1 letters.
func columnLetter(col int) string {
	if col < 1 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}
