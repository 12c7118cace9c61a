package googlesheets

import (
	"time"

	"github.com/ideamans/go-sheetsync"
)

// DefaultSheetName is the tab used when Config.SheetName is empty
const DefaultSheetName = "Leads"

// readColumns bounds reads and clears to the used width of a tab
const readColumns = "A:ZZ"

// Config represents configuration specific to Google Sheets adapter
type Config struct {
	SpreadsheetID string
	SheetName     string
}

// DefaultReconcilerConfig returns reconciler settings suited to the Sheets API quotas
func DefaultReconcilerConfig() *sheetsync.Config {
	cfg := sheetsync.DefaultConfig()
	cfg.PageDelay = 2 * time.Second
	cfg.MaxRetries = 5
	cfg.RetryDelay = 20 * time.Second
	return cfg
}
