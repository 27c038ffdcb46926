package memory

import (
	"context"
	"fmt"
	"sync"

	"financeos/internal/core"
	ports "financeos/internal/sheets"
)

// Exporter keeps exported rows in memory. It backs local runs without
// Google credentials and the worker tests.
type Exporter struct {
	mu      sync.Mutex
	rows    [][]string
	batches []string
}

var _ ports.LedgerExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// ExportBatch stores the rows and returns a synthetic range reference.
func (e *Exporter) ExportBatch(_ context.Context, batch core.ImportBatch, txs []core.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	first := len(e.rows) + 1
	for _, t := range txs {
		e.rows = append(e.rows, ports.Row(t))
	}
	e.batches = append(e.batches, batch.ID)
	return fmt.Sprintf("mem:%d-%d", first, len(e.rows)), nil
}

// Rows returns a copy of every exported row.
func (e *Exporter) Rows() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.rows))
	for i, r := range e.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Batches lists exported batch IDs in export order.
func (e *Exporter) Batches() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.batches...)
}
