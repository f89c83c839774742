package sheets

import (
	"context"

	"smsledger/internal/core"
)

// Ports for the spreadsheet mirror.
type (
	// TransactionWriter appends one stored transaction as a row.
	TransactionWriter interface {
		Append(ctx context.Context, rec core.TransactionRecord) (rowRef string, err error)
	}

	// TransactionReader reads back every mirrored row.
	TransactionReader interface {
		List(ctx context.Context) ([]core.TransactionRecord, error)
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{
	"ID",
	"Category",
	"Datetime",
	"Amount",
	"Fee",
	"Recipient",
	"Code",
	"Account/Phone",
	"Sender",
	"Raw Text",
}
