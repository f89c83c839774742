package google

import (
	"fmt"
	"strconv"
	"strings"

	"smsledger/internal/core"
	ports "smsledger/internal/sheets"
)

func lastColumn() string {
	return string(rune('A' + len(ports.Header) - 1))
}

func toRow(rec core.TransactionRecord) []any {
	return []any{
		rec.ID,
		rec.Category.String(),
		rec.Datetime,
		rec.Amount,
		rec.Fee,
		core.Deref(rec.Recipient),
		core.Deref(rec.Code),
		core.Deref(rec.AccountOrPhone),
		core.Deref(rec.Sender),
		rec.RawText,
	}
}

// parseRows converts a values matrix (as returned by the Sheets API) back
// into records. The first row must be the header.
func parseRows(values [][]any) ([]core.TransactionRecord, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	if len(headers) == 0 || !strings.EqualFold(headers[0], ports.Header[0]) {
		return nil, fmt.Errorf("unexpected header: got %v", headers)
	}

	out := make([]core.TransactionRecord, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if len(row) == 0 || strings.TrimSpace(safeGet(row, 0)) == "" {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (core.TransactionRecord, error) {
	id, err := strconv.ParseInt(safeGet(row, 0), 10, 64)
	if err != nil {
		return core.TransactionRecord{}, fmt.Errorf("invalid id %q", safeGet(row, 0))
	}
	cat, err := core.ParseCategory(safeGet(row, 1))
	if err != nil {
		return core.TransactionRecord{}, fmt.Errorf("category %q: %w", safeGet(row, 1), err)
	}
	amount, ok := parseInt(safeGet(row, 3))
	if !ok {
		return core.TransactionRecord{}, fmt.Errorf("invalid amount %q", safeGet(row, 3))
	}
	fee, ok := parseInt(safeGet(row, 4))
	if !ok {
		return core.TransactionRecord{}, fmt.Errorf("invalid fee %q", safeGet(row, 4))
	}

	return core.TransactionRecord{
		ID:             id,
		Category:       cat,
		Datetime:       safeGet(row, 2),
		Amount:         amount,
		Fee:            fee,
		Recipient:      core.StringPtr(safeGet(row, 5)),
		Code:           core.StringPtr(safeGet(row, 6)),
		AccountOrPhone: core.StringPtr(safeGet(row, 7)),
		Sender:         core.StringPtr(safeGet(row, 8)),
		RawText:        safeGet(row, 9),
	}, nil
}

// parseInt accepts the formatted variants a spreadsheet may hand back
// ("1,000", "1000", "").
func parseInt(s string) (int64, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, true
	}
	v, err := core.ParseAmount(s)
	return v, err == nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
