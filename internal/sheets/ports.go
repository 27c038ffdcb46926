package sheets

import (
	"context"

	"financeos/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter appends committed ledger rows to an external sheet.
	LedgerExporter interface {
		// ExportBatch appends one row per transaction and returns a reference
		// to the range that was written.
		ExportBatch(ctx context.Context, batch core.ImportBatch, txs []core.Transaction) (rangeRef string, err error)
	}
)

// Header is the column layout written by every exporter.
var Header = []string{"date", "description", "amount", "category", "hash_id"}

// Row renders a transaction in Header order.
func Row(t core.Transaction) []string {
	category := t.Category
	if category == "" {
		category = core.DefaultCategory
	}
	return []string{
		t.Date.String(),
		t.Description,
		core.FormatAmount(t.Amount),
		category,
		t.Fingerprint,
	}
}
