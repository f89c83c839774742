// Package core provides the domain types shared by the ingestion pipeline.
//
// This file contains helpers for parsing whole-franc amounts as they appear
// in mobile-money notifications ("10,000 RWF", "Fee was 250").
package core

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidAmount is returned for amounts that are empty, contain anything
// other than digits and thousands separators, or overflow int64.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a digit run with optional comma thousands separators
// into an integer amount.
//
// Examples:
//
//	ParseAmount("10,000") -> 10000, nil
//	ParseAmount("250")    -> 250, nil
//	ParseAmount(",")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatAmount renders an amount with comma thousands separators.
func FormatAmount(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
