package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"financeos/internal/amqp"
	"financeos/internal/core"
	"financeos/internal/sheets"
	"financeos/internal/storage"
)

// Store is what the worker needs from persistence.
type Store interface {
	storage.TransactionStore
	storage.SnapshotStore
}

// LedgerWorker reacts to committed imports: it records the account's opening
// balance for the day and mirrors the batch to the export sheet.
type LedgerWorker struct {
	store    Store
	exporter sheets.LedgerExporter
	now      func() time.Time
}

// NewLedgerWorker creates a worker. exporter may be nil to skip the export.
func NewLedgerWorker(store Store, exporter sheets.LedgerExporter) *LedgerWorker {
	return &LedgerWorker{
		store:    store,
		exporter: exporter,
		now:      time.Now,
	}
}

// HandleImportCompleted processes a single import-completed message from AMQP.
func (w *LedgerWorker) HandleImportCompleted(ctx context.Context, msg *amqp.ImportCompletedMessage) error {
	slog.InfoContext(ctx, "Processing import message",
		"batch_id", msg.BatchID,
		"account_id", msg.AccountID,
		"accepted", msg.Accepted)

	batch, txs, err := w.store.GetBatch(ctx, msg.BatchID)
	if err != nil {
		return fmt.Errorf("get batch %s: %w", msg.BatchID, err)
	}
	if batch.AccountID != msg.AccountID {
		return fmt.Errorf("batch %s belongs to account %s, message names %s", batch.ID, batch.AccountID, msg.AccountID)
	}

	if err := w.recordSnapshot(ctx, batch.AccountID); err != nil {
		return err
	}

	if w.exporter == nil {
		slog.DebugContext(ctx, "No exporter configured, skipping sheet export", "batch_id", batch.ID)
		return nil
	}
	ref, err := w.exporter.ExportBatch(ctx, batch, txs)
	if err != nil {
		return fmt.Errorf("export batch %s: %w", batch.ID, err)
	}

	slog.InfoContext(ctx, "Import message processed",
		"batch_id", batch.ID,
		"exported_rows", len(txs),
		"range", ref)
	return nil
}

// recordSnapshot stores the balance of every ledger row dated before today.
func (w *LedgerWorker) recordSnapshot(ctx context.Context, accountID string) error {
	ledger, err := w.store.ListTransactions(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	now := w.now().UTC()
	today := core.DateOf(now)
	balance := decimal.Zero
	for _, t := range ledger {
		if t.Date.Before(today) {
			balance = balance.Add(t.Amount)
		}
	}

	snap := core.Snapshot{Timestamp: now, Balance: balance, AccountName: accountID}
	if err := w.store.SaveSnapshot(ctx, accountID, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	slog.DebugContext(ctx, "Snapshot recorded", "account_id", accountID, "balance", core.FormatAmount(balance))
	return nil
}
