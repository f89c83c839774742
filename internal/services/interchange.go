package services

import (
	"encoding/json"
	"fmt"
	"io"

	"smsledger/internal/core"
)

// interchangeRecord is the JSON shape written between the parse and load
// stages. Optional fields are omitted when absent.
type interchangeRecord struct {
	Category       string  `json:"category"`
	Datetime       string  `json:"datetime"`
	RawText        string  `json:"raw_text"`
	Amount         int64   `json:"amount"`
	Fee            int64   `json:"fee"`
	Recipient      *string `json:"recipient,omitempty"`
	Code           *string `json:"code,omitempty"`
	AccountOrPhone *string `json:"account_or_phone,omitempty"`
	Sender         *string `json:"sender,omitempty"`
}

// WriteInterchange writes records as an indented JSON array.
func WriteInterchange(w io.Writer, records []core.TransactionRecord) error {
	out := make([]interchangeRecord, len(records))
	for i, r := range records {
		out[i] = interchangeRecord{
			Category:       r.Category.String(),
			Datetime:       r.Datetime,
			RawText:        r.RawText,
			Amount:         r.Amount,
			Fee:            r.Fee,
			Recipient:      r.Recipient,
			Code:           r.Code,
			AccountOrPhone: r.AccountOrPhone,
			Sender:         r.Sender,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode interchange: %w", err)
	}
	return nil
}

// ReadInterchange parses a document produced by WriteInterchange. Missing
// amount or fee read as 0.
func ReadInterchange(r io.Reader) ([]core.TransactionRecord, error) {
	var in []interchangeRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&in); err != nil {
		return nil, &core.MalformedInputError{Err: fmt.Errorf("decode interchange: %w", err)}
	}

	out := make([]core.TransactionRecord, 0, len(in))
	for i, rec := range in {
		cat, err := core.ParseCategory(rec.Category)
		if err != nil {
			return nil, &core.MalformedInputError{Err: fmt.Errorf("record %d: category %q: %w", i, rec.Category, err)}
		}
		out = append(out, core.TransactionRecord{
			Category:       cat,
			Datetime:       rec.Datetime,
			Amount:         rec.Amount,
			Fee:            rec.Fee,
			Recipient:      rec.Recipient,
			Code:           rec.Code,
			AccountOrPhone: rec.AccountOrPhone,
			Sender:         rec.Sender,
			RawText:        rec.RawText,
		})
	}
	return out, nil
}
