package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"smsledger/internal/core"
	ports "smsledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var (
	_ ports.TransactionWriter = (*Client)(nil)
	_ ports.TransactionReader = (*Client)(nil)
)

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// ConfigFromEnv reads GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_NAME (default
// "Transactions") and the service account settings.
func ConfigFromEnv() Config {
	cfg := Config{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:       strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" {
		cfg.CredentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return cfg
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	creds, err := credentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewFromEnv is New(ctx, ConfigFromEnv()).
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, ConfigFromEnv())
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if sheetName == "" {
		sheetName = "Transactions"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	switch {
	case cfg.CredentialsJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(cfg.CredentialsJSON), nil
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling returns an HTTP client with bounded timeouts and
// keep-alive connection reuse for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) columns() string {
	return fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn())
}

// EnsureHeader writes the header row when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:%s1", c.sheetName, lastColumn())
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", c.sheetName, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	vr := &gsheet.ValueRange{Values: [][]any{header}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", c.sheetName, err)
	}
	return nil
}

// Append adds rec as a new row and returns the updated range.
func (c *Client) Append(ctx context.Context, rec core.TransactionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	vr := &gsheet.ValueRange{Values: [][]any{toRow(rec)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.columns(), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := c.sheetName
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// List reads every data row below the header.
func (c *Client) List(ctx context.Context) ([]core.TransactionRecord, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.columns()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.sheetName, err)
	}
	return parseRows(resp.Values)
}
