package backend

import (
	"context"
	"errors"
	"testing"

	"smsledger/internal/config"
	"smsledger/internal/log"
	gsheet "smsledger/internal/sheets/google"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		want    TargetType
		wantErr bool
	}{
		{name: "nothing configured", cfg: config.Config{}, want: NoTarget},
		{name: "spreadsheet implies sheets", cfg: config.Config{GoogleSpreadsheetID: "abc", GoogleSheetName: "Transactions"}, want: SheetsTarget},
		{name: "explicit memory", cfg: config.Config{SyncTarget: "memory", GoogleSpreadsheetID: "abc"}, want: MemoryTarget},
		{name: "explicit none", cfg: config.Config{SyncTarget: "none", GoogleSpreadsheetID: "abc"}, want: NoTarget},
		{name: "sheets without id", cfg: config.Config{SyncTarget: "sheets"}, wantErr: true},
		{name: "unknown", cfg: config.Config{SyncTarget: "bigquery"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAppConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Type != tt.want {
				t.Errorf("FromAppConfig() type = %v, want %v", got.Type, tt.want)
			}
		})
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) should fail")
	}
}

func TestFactory_Create(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(log.Nop())

	target, err := f.Create(ctx, Config{Type: MemoryTarget})
	if err != nil || !target.Enabled() {
		t.Fatalf("memory target = %+v, %v", target, err)
	}

	target, err = f.Create(ctx, Config{Type: NoTarget})
	if err != nil || target.Enabled() {
		t.Fatalf("none target = %+v, %v", target, err)
	}

	f.newSheets = func(context.Context, gsheet.Config) (*gsheet.Client, error) {
		return nil, errors.New("no credentials")
	}
	if _, err := f.Create(ctx, Config{Type: SheetsTarget, GoogleSpreadsheetID: "abc", GoogleSheetName: "Transactions"}); err == nil {
		t.Error("expected sheets client error to propagate")
	}
}
