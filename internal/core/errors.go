package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a transaction id does not exist.
var ErrNotFound = errors.New("transaction not found")

// MalformedInputError means the backup document itself could not be parsed.
// The whole batch is abandoned.
type MalformedInputError struct {
	Source string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("malformed input %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("malformed input: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// DateParsingError marks a single message whose timestamp is unusable.
type DateParsingError struct {
	Raw string
	Err error
}

func (e *DateParsingError) Error() string {
	return fmt.Sprintf("Date parsing error: %v", e.Err)
}

func (e *DateParsingError) Unwrap() error { return e.Err }

// StoreWriteError is a per-record persistence failure that is not a
// uniqueness conflict.
type StoreWriteError struct {
	RawText string
	Err     error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("insert transaction %q: %v", Truncate(e.RawText, 30), e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
