// Package backup reads SMS Backup & Restore style XML exports into raw
// messages.
package backup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"smsledger/internal/audit"
	"smsledger/internal/core"
)

const (
	smsElement  = "sms"
	bodyAttr    = "body"
	dateAttr    = "date"
	maxFileSize = 512 << 20
)

var (
	errNoRoot        = errors.New("no root element")
	errMultipleRoots = errors.New("junk after document element")
	errMissingDate   = errors.New("missing date attribute")
	errEmptyDate     = errors.New("empty date attribute")
)

// Read parses a backup document. Only <sms> children of the root element are
// considered. A syntax error anywhere abandons the whole document and returns
// a *core.MalformedInputError. Messages with an unusable date are reported to
// sink and skipped.
func Read(r io.Reader, sink audit.Sink) ([]core.RawMessage, error) {
	sink = audit.OrDiscard(sink)

	dec := xml.NewDecoder(r)
	dec.Strict = true

	var (
		msgs    []core.RawMessage
		skipped []audit.Entry
		depth   int
		sawRoot bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &core.MalformedInputError{Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if sawRoot {
					return nil, &core.MalformedInputError{Err: errMultipleRoots}
				}
				sawRoot = true
			}
			if depth == 1 && t.Name.Local == smsElement {
				msg, err := parseSMS(t)
				if err != nil {
					skipped = append(skipped, audit.Entry{Reason: err.Error(), Message: msg.Body})
				} else {
					msgs = append(msgs, msg)
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return nil, &core.MalformedInputError{Err: errNoRoot}
	}
	if depth != 0 {
		return nil, &core.MalformedInputError{Err: io.ErrUnexpectedEOF}
	}

	// Only audit once the document is known to be well formed.
	for _, e := range skipped {
		sink.Record(e)
	}

	return msgs, nil
}

// ReadFile opens path and calls Read.
func ReadFile(path string, sink audit.Sink) ([]core.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	msgs, err := Read(io.LimitReader(f, maxFileSize), sink)
	if err != nil {
		var mErr *core.MalformedInputError
		if errors.As(err, &mErr) {
			mErr.Source = path
		}
		return nil, err
	}
	return msgs, nil
}

func parseSMS(el xml.StartElement) (core.RawMessage, error) {
	var (
		msg     core.RawMessage
		rawDate string
		hasDate bool
	)
	for _, a := range el.Attr {
		switch a.Name.Local {
		case bodyAttr:
			msg.Body = a.Value
		case dateAttr:
			rawDate = a.Value
			hasDate = true
		}
	}

	if !hasDate {
		return msg, &core.DateParsingError{Err: errMissingDate}
	}
	trimmed := strings.TrimSpace(rawDate)
	if trimmed == "" {
		return msg, &core.DateParsingError{Raw: rawDate, Err: errEmptyDate}
	}
	ms, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return msg, &core.DateParsingError{Raw: rawDate, Err: fmt.Errorf("invalid literal %q", rawDate)}
	}
	msg.TimestampMillis = ms
	return msg, nil
}
