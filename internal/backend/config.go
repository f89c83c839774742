// Package backend selects where stored transactions are mirrored to.
package backend

import (
	"fmt"

	"smsledger/internal/config"
)

// TargetType names a sync target.
type TargetType string

const (
	SheetsTarget TargetType = "sheets"
	MemoryTarget TargetType = "memory"
	NoTarget     TargetType = "none"
)

func (t TargetType) String() string {
	return string(t)
}

func (t TargetType) IsValid() bool {
	switch t {
	case SheetsTarget, MemoryTarget, NoTarget:
		return true
	}
	return false
}

// Config describes the sync target to build.
type Config struct {
	Type                TargetType
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// FromAppConfig resolves SYNC_TARGET. When unset, the target is sheets if a
// spreadsheet is configured and none otherwise.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := TargetType(appConfig.SyncTarget)
	if t == "" {
		t = NoTarget
		if appConfig.SheetsEnabled() {
			t = SheetsTarget
		}
	}

	c := Config{
		Type:                t,
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSheetName:     appConfig.GoogleSheetName,
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid sync target: %q", c.Type)
	}
	if c.Type == SheetsTarget {
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets target")
		}
		if c.GoogleSheetName == "" {
			return fmt.Errorf("Google Sheet name is required for sheets target")
		}
	}
	return nil
}
