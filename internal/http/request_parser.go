package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"smsledger/internal/core"
	"smsledger/internal/storage"
)

const maxPageSize = 1000

// ParseTransactionFilter reads the list query parameters. Absent parameters
// do not filter; malformed ones are rejected.
func ParseTransactionFilter(q url.Values) (storage.TransactionFilter, error) {
	var f storage.TransactionFilter

	if v := strings.TrimSpace(q.Get("type")); v != "" {
		// unknown labels simply match nothing
		if c, err := core.ParseCategory(v); err == nil {
			v = c.String()
		}
		f.Category = v
	}

	var err error
	if f.MinAmount, err = optionalInt(q, "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = optionalInt(q, "max_amount"); err != nil {
		return f, err
	}

	if v := strings.TrimSpace(q.Get("date")); v != "" {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return f, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", v)
		}
		f.Date = v
	}

	limit, err := optionalInt(q, "limit")
	if err != nil {
		return f, err
	}
	if limit != nil {
		if *limit < 1 || *limit > maxPageSize {
			return f, fmt.Errorf("invalid limit %d: must be between 1 and %d", *limit, maxPageSize)
		}
		f.Limit = int(*limit)
	}
	offset, err := optionalInt(q, "offset")
	if err != nil {
		return f, err
	}
	if offset != nil {
		if *offset < 0 {
			return f, fmt.Errorf("invalid offset %d: must not be negative", *offset)
		}
		f.Offset = int(*offset)
	}

	return f, nil
}

func optionalInt(q url.Values, key string) (*int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: must be an integer", key, v)
	}
	return &n, nil
}

// parseID parses the {id} path segment.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// filterKey is a canonical cache key for f.
func filterKey(f storage.TransactionFilter) string {
	var b strings.Builder
	b.WriteString("list|")
	b.WriteString(f.Category)
	b.WriteByte('|')
	if f.MinAmount != nil {
		b.WriteString(strconv.FormatInt(*f.MinAmount, 10))
	}
	b.WriteByte('|')
	if f.MaxAmount != nil {
		b.WriteString(strconv.FormatInt(*f.MaxAmount, 10))
	}
	fmt.Fprintf(&b, "|%s|%d|%d", f.Date, f.Limit, f.Offset)
	return b.String()
}
