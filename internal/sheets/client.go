// Package sheets is the remote sink: it appends ledger rows to a Google
// Sheets spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"autoledger/internal/domain"
)

const (
	// Rows land in columns B..E of the configured tab.
	appendRangeSuffix = "!B:E"
	headerProbeSuffix = "!A1:F1"
	headerRangeSuffix = "!B4:E4"

	dateLayout = "01/02/2006" // MM/DD/YYYY
)

// Client talks to one spreadsheet tab. A zero spreadsheet id means the sink
// is not configured; callers must check Configured before appending.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	tab           string
	logger        *log.Logger
}

// New builds a client from service-account credentials. credentialsFile may
// be empty when ambient credentials are available.
func New(ctx context.Context, spreadsheetID, tab, credentialsFile string, logger *log.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(sheetsapi.SpreadsheetsScope))

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, spreadsheetID, tab, logger), nil
}

// NewWithService wires an externally constructed service, used by tests to
// point the client at a fake endpoint.
func NewWithService(svc *sheetsapi.Service, spreadsheetID, tab string, logger *log.Logger) *Client {
	return newClient(svc, spreadsheetID, tab, logger)
}

func newClient(svc *sheetsapi.Service, spreadsheetID, tab string, logger *log.Logger) *Client {
	if tab == "" {
		tab = "Transactions"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tab: tab, logger: logger}
}

// Configured reports whether a target spreadsheet is set. Absence is a
// distinct outcome from a delivery failure and never an error mid-pipeline.
func (c *Client) Configured() bool {
	return c != nil && c.spreadsheetID != ""
}

// Target names the configured destination for logs and summaries.
func (c *Client) Target() string {
	if !c.Configured() {
		return ""
	}
	return c.spreadsheetID + "/" + c.tab
}

// Row maps a transaction to its spreadsheet columns.
func Row(txn domain.Transaction) []interface{} {
	return []interface{}{
		txn.CreatedAt.Format(dateLayout),
		strconv.FormatFloat(txn.Amount, 'f', 2, 64),
		txn.Merchant,
		txn.Category,
	}
}

// AppendRow appends one transaction to the configured tab.
func (c *Client) AppendRow(ctx context.Context, txn domain.Transaction) error {
	if !c.Configured() {
		return fmt.Errorf("sheets sink not configured")
	}
	body := &sheetsapi.ValueRange{Values: [][]interface{}{Row(txn)}}
	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.tab+appendRangeSuffix, body).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("OVERWRITE").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", c.tab, err)
	}
	return nil
}

// ValidateTarget checks the spreadsheet is reachable and returns its title.
func (c *Client) ValidateTarget(ctx context.Context, spreadsheetID string) (string, error) {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("validate spreadsheet %s: %w", spreadsheetID, err)
	}
	if ss.Properties == nil {
		return "", nil
	}
	return ss.Properties.Title, nil
}

// EnsureHeaders writes the header row when the tab is empty. Best-effort:
// the caller logs failures and carries on, appends work without headers.
func (c *Client) EnsureHeaders(ctx context.Context) error {
	if !c.Configured() {
		return nil
	}
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, c.tab+headerProbeSuffix).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("probe headers: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	headers := &sheetsapi.ValueRange{
		Values: [][]interface{}{{"Date", "Amount", "Description", "Category"}},
	}
	_, err = c.svc.Spreadsheets.Values.
		Update(c.spreadsheetID, c.tab+headerRangeSuffix, headers).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	c.logger.Info("sheet headers written", "tab", c.tab)
	return nil
}

var spreadsheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSpreadsheetID accepts either a bare spreadsheet id or a full
// docs.google.com URL and returns the id, or "" when neither.
func ExtractSpreadsheetID(urlOrID string) string {
	if !strings.Contains(urlOrID, "/") {
		return strings.TrimSpace(urlOrID)
	}
	m := spreadsheetURLPattern.FindStringSubmatch(urlOrID)
	if m == nil {
		return ""
	}
	return m[1]
}
