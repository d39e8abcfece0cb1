// Package sheets implements the range-oriented record store on top of the
// Google Sheets v4 values API.
package sheets

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/aristath/metrics-updater/internal/domain"
)

// ValueInputOption makes the sheet parse written values as if typed by a user,
// so timestamps and numbers keep their native cell types.
const ValueInputOption = "USER_ENTERED"

// Config holds Sheets client configuration
type Config struct {
	SpreadsheetID   string
	CredentialsPath string
	Options         []option.ClientOption // extra options, appended last
	Log             zerolog.Logger
}

// Client reads and writes ranges of a single spreadsheet
type Client struct {
	values        *gsheets.SpreadsheetsValuesService
	spreadsheetID string
	log           zerolog.Logger
}

// NewClient creates a Sheets client authenticated with a service account
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}

	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}
	opts = append(opts, cfg.Options...)

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: cfg.SpreadsheetID,
		log:           cfg.Log.With().Str("client", "sheets").Logger(),
	}, nil
}

// ReadRange returns the formatted cell values of an A1 range. Trailing empty
// cells are omitted by the API, so rows may be ragged.
func (c *Client) ReadRange(ctx context.Context, a1Range string) ([][]string, error) {
	resp, err := c.values.Get(c.spreadsheetID, a1Range).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", a1Range, err)
	}

	c.log.Debug().Str("range", a1Range).Int("rows", len(resp.Values)).Msg("Read range")
	return toStrings(resp.Values), nil
}

// BatchWrite applies all writes in a single values.batchUpdate call
func (c *Client) BatchWrite(ctx context.Context, writes []domain.RangeWrite) error {
	if len(writes) == 0 {
		return nil
	}

	req := &gsheets.BatchUpdateValuesRequest{
		ValueInputOption: ValueInputOption,
		Data:             toValueRanges(writes),
	}

	resp, err := c.values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to batch update %d ranges: %w", len(writes), err)
	}

	c.log.Debug().
		Int("ranges", len(writes)).
		Int64("cells", resp.TotalUpdatedCells).
		Msg("Batch update applied")
	return nil
}

func toStrings(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, cell := range row {
			switch v := cell.(type) {
			case nil:
			case string:
				cells[j] = v
			default:
				cells[j] = fmt.Sprint(v)
			}
		}
		rows[i] = cells
	}
	return rows
}

func toValueRanges(writes []domain.RangeWrite) []*gsheets.ValueRange {
	data := make([]*gsheets.ValueRange, 0, len(writes))
	for _, w := range writes {
		data = append(data, &gsheets.ValueRange{
			Range:          w.Range,
			MajorDimension: "ROWS",
			Values:         w.Values,
		})
	}
	return data
}
