package backend

import (
	"context"
	"fmt"

	"smsledger/internal/log"
	"smsledger/internal/sheets"
	gsheet "smsledger/internal/sheets/google"
	"smsledger/internal/sheets/memory"
)

// Target is a built sync target. Writer is nil for NoTarget.
type Target struct {
	Type   TargetType
	Writer sheets.TransactionWriter
}

// Enabled reports whether rows should be mirrored at all.
func (t Target) Enabled() bool {
	return t.Writer != nil
}

// Factory builds sync targets.
type Factory struct {
	logger *log.Logger

	// newSheets is swapped in tests
	newSheets func(ctx context.Context, cfg gsheet.Config) (*gsheet.Client, error)
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Default(log.ComponentSheets)
	}
	return &Factory{
		logger:    logger.WithComponent(log.ComponentSheets),
		newSheets: gsheet.New,
	}
}

func (f *Factory) Create(ctx context.Context, cfg Config) (Target, error) {
	if err := cfg.Validate(); err != nil {
		return Target{}, err
	}

	switch cfg.Type {
	case SheetsTarget:
		sc := gsheet.ConfigFromEnv()
		sc.SpreadsheetID = cfg.GoogleSpreadsheetID
		sc.SheetName = cfg.GoogleSheetName
		client, err := f.newSheets(ctx, sc)
		if err != nil {
			return Target{}, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		if err := client.EnsureHeader(ctx); err != nil {
			f.logger.WarnContext(ctx, "Failed to write sheet header", log.FieldError, err)
		}
		f.logger.InfoContext(ctx, "Google Sheets sync target ready", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
		return Target{Type: SheetsTarget, Writer: client}, nil

	case MemoryTarget:
		f.logger.InfoContext(ctx, "In-memory sync target: rows are mirrored to process memory only")
		return Target{Type: MemoryTarget, Writer: memory.New()}, nil

	default:
		f.logger.InfoContext(ctx, "Sync disabled - no target configured")
		return Target{Type: NoTarget}, nil
	}
}
