package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"financeos/internal/amqp"
	"financeos/internal/core"
	"financeos/internal/ledger"
	"financeos/internal/storage/memory"
)

const statementCSV = `Date,Description,Amount,Category
2026-01-05,Coffee Shop,-4.50,Food
2026-01-06,Salary,2500.00,Income
2026-01-07,Grocery Store,-82.10,Food
`

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ImportCompletedMessage
	err  error
}

func (f *fakePublisher) PublishImportCompleted(_ context.Context, msg *amqp.ImportCompletedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeInvalidator struct {
	mu       sync.Mutex
	accounts []string
}

func (f *fakeInvalidator) Invalidate(accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, accountID)
}

func importCSV(t *testing.T, svc *ImportService, req ImportRequest, body string) ImportOutcome {
	t.Helper()
	req.Body = strings.NewReader(body)
	out, err := svc.Import(context.Background(), req)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	return out
}

func TestImportService_CommitsAndPublishes(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	inv := &fakeInvalidator{}
	svc := NewImportService(store, pub, inv)

	out := importCSV(t, svc, ImportRequest{AccountID: "acc"}, statementCSV)

	if !out.Committed {
		t.Fatal("expected batch to be committed")
	}
	if len(out.Approved) != 3 || out.Batch.Accepted != 3 {
		t.Fatalf("expected 3 approved rows, got %d (batch %d)", len(out.Approved), out.Batch.Accepted)
	}
	for _, tx := range out.Approved {
		if tx.BatchID != out.Batch.ID {
			t.Errorf("transaction %s has batch %q, want %q", tx.ID, tx.BatchID, out.Batch.ID)
		}
	}

	stored, _ := store.ListTransactions(context.Background(), "acc")
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored transactions, got %d", len(stored))
	}
	if pub.count() != 1 || pub.msgs[0].BatchID != out.Batch.ID || pub.msgs[0].Accepted != 3 {
		t.Fatalf("unexpected published messages: %+v", pub.msgs)
	}
	if len(inv.accounts) != 1 || inv.accounts[0] != "acc" {
		t.Fatalf("expected one invalidation for acc, got %v", inv.accounts)
	}

	batch, txs, err := store.GetBatch(context.Background(), out.Batch.ID)
	if err != nil || batch.Mode != string(ledger.ModeExact) || len(txs) != 3 {
		t.Fatalf("unexpected batch: %+v txs=%d err=%v", batch, len(txs), err)
	}
}

func TestImportService_ReimportIsIdempotent(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	svc := NewImportService(store, pub, nil)

	importCSV(t, svc, ImportRequest{AccountID: "acc"}, statementCSV)
	again := importCSV(t, svc, ImportRequest{AccountID: "acc"}, statementCSV)

	if again.Committed {
		t.Error("second import should not commit")
	}
	if len(again.Approved) != 0 || len(again.Result.RejectedAsDuplicate) != 3 {
		t.Errorf("expected 0 approved and 3 rejected, got %d and %d",
			len(again.Approved), len(again.Result.RejectedAsDuplicate))
	}
	if pub.count() != 1 {
		t.Errorf("expected a single published event, got %d", pub.count())
	}
}

func TestImportService_DryRunWritesNothing(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	svc := NewImportService(store, pub, nil)

	out := importCSV(t, svc, ImportRequest{AccountID: "acc", DryRun: true}, statementCSV)

	if out.Committed || len(out.Approved) != 3 {
		t.Fatalf("dry run: committed=%v approved=%d", out.Committed, len(out.Approved))
	}
	stored, _ := store.ListTransactions(context.Background(), "acc")
	if len(stored) != 0 {
		t.Errorf("dry run stored %d transactions", len(stored))
	}
	if pub.count() != 0 {
		t.Errorf("dry run published %d events", pub.count())
	}
}

func TestImportService_FuzzyApproval(t *testing.T) {
	store := memory.New()
	svc := NewImportService(store, nil, nil)
	importCSV(t, svc, ImportRequest{AccountID: "acc"}, "date,description,amount\n2026-01-05,Coffee Shop Downtown,-4.50\n")

	body := "date,description,amount\n2026-01-06,Coffee,-4.50\n2026-01-20,Bookstore,-15.00\n"

	preview := importCSV(t, svc, ImportRequest{AccountID: "acc", Mode: ledger.ModeFuzzy, DryRun: true}, body)
	if len(preview.Result.SuspectedDuplicates) != 1 || len(preview.Approved) != 1 {
		t.Fatalf("expected 1 suspected and 1 approved, got %d and %d",
			len(preview.Result.SuspectedDuplicates), len(preview.Approved))
	}

	// IDs are fresh per run, so approve by re-reading the suspected description.
	out := importCSV(t, svc, ImportRequest{AccountID: "acc", Mode: ledger.ModeFuzzy}, body)
	if len(out.Approved) != 1 || out.Approved[0].Description != "Bookstore" {
		t.Fatalf("expected only Bookstore to be auto-approved, got %+v", out.Approved)
	}

	stored, _ := store.ListTransactions(context.Background(), "acc")
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored transactions, got %d", len(stored))
	}
}

func TestImportService_ApproveOverridesSuspected(t *testing.T) {
	store := memory.New()
	svc := NewImportService(store, nil, nil)
	svc.ingestor = ledger.Ingestor{NewID: func() string { return "fixed-id" }}
	importCSV(t, svc, ImportRequest{AccountID: "acc"}, "date,description,amount\n2026-01-05,Coffee Shop,-4.50\n")

	svc.ingestor = ledger.Ingestor{NewID: func() string { return "suspect-1" }}
	out := importCSV(t, svc, ImportRequest{AccountID: "acc", Mode: ledger.ModeFuzzy, Approve: []string{"suspect-1"}},
		"date,description,amount\n2026-01-06,Coffee,-4.50\n")

	if !out.Committed || len(out.Approved) != 1 || out.Approved[0].ID != "suspect-1" {
		t.Fatalf("expected the approved suspect to be committed, got %+v", out)
	}
}

func TestImportService_MalformedRowsDoNotFailBatch(t *testing.T) {
	store := memory.New()
	svc := NewImportService(store, nil, nil)

	out := importCSV(t, svc, ImportRequest{AccountID: "acc"},
		"date,description,amount\nnot-a-date,Broken,-1.00\n2026-01-05,Fine,-2.00\n")

	if len(out.Result.Malformed) != 1 || len(out.Approved) != 1 || !out.Committed {
		t.Fatalf("unexpected outcome: malformed=%d approved=%d committed=%v",
			len(out.Result.Malformed), len(out.Approved), out.Committed)
	}
}

func TestImportService_PublishFailureKeepsCommit(t *testing.T) {
	store := memory.New()
	svc := NewImportService(store, &fakePublisher{err: errors.New("broker down")}, nil)

	out := importCSV(t, svc, ImportRequest{AccountID: "acc"}, statementCSV)
	if !out.Committed {
		t.Fatal("publish failure must not undo the commit")
	}
}

func TestImportService_InvalidRequests(t *testing.T) {
	svc := NewImportService(memory.New(), nil, nil)

	tests := []struct {
		name string
		req  ImportRequest
	}{
		{"missing account", ImportRequest{Body: strings.NewReader(statementCSV)}},
		{"missing body", ImportRequest{AccountID: "acc"}},
		{"empty csv", ImportRequest{AccountID: "acc", Body: strings.NewReader("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidImport) {
				t.Fatalf("expected ErrInvalidImport, got %v", err)
			}
		})
	}
}

func TestImportService_ConcurrentImportsAreSerialized(t *testing.T) {
	store := memory.New()
	svc := NewImportService(store, nil, nil)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		errs      []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.Import(context.Background(), ImportRequest{AccountID: "acc", Body: strings.NewReader(statementCSV)})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if out.Committed {
				committed++
			}
		}()
	}
	wg.Wait()

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if committed != 1 {
		t.Fatalf("expected exactly one committing import, got %d", committed)
	}
	stored, _ := store.ListTransactions(context.Background(), "acc")
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored transactions, got %d", len(stored))
	}
}

func TestImportService_AccountsAreIndependent(t *testing.T) {
	store := memory.New()
	svc := NewImportService(store, nil, nil)

	importCSV(t, svc, ImportRequest{AccountID: "a"}, statementCSV)
	out := importCSV(t, svc, ImportRequest{AccountID: "b"}, statementCSV)

	if len(out.Approved) != 3 {
		t.Fatalf("same rows on another account should be accepted, got %d", len(out.Approved))
	}
	for _, tx := range out.Approved {
		if tx.AccountID != "b" || tx.Status != core.StatusReal {
			t.Errorf("unexpected transaction %+v", tx)
		}
	}
}

func TestImportService_FuzzyFingerprintCollisionsAreRejectedNotFatal(t *testing.T) {
	store := memory.New()
	svc := NewImportService(store, nil, nil)
	importCSV(t, svc, ImportRequest{AccountID: "acc"}, "date,description,amount\n2026-01-15,Coffee Shop,-4.50\n")

	out := importCSV(t, svc, ImportRequest{AccountID: "acc", Mode: ledger.ModeFuzzy},
		"date,description,amount\n2026-01-15,Starbucks,-4.50\n2026-01-20,Rent,-900.00\n")
	if !out.Committed {
		t.Fatal("expected the remaining rows to be committed")
	}
	if len(out.Approved) != 1 || out.Approved[0].Description != "Rent" {
		t.Fatalf("expected only Rent to be committed, got %+v", out.Approved)
	}
	if len(out.Result.RejectedAsDuplicate) != 1 || out.Result.RejectedAsDuplicate[0].Description != "Starbucks" {
		t.Fatalf("expected Starbucks to be rejected, got %+v", out.Result.RejectedAsDuplicate)
	}
	if len(out.Result.Conflicts) != 1 || out.Result.Conflicts[0].ExistingID == "" {
		t.Fatalf("expected one conflict naming the stored row, got %+v", out.Result.Conflicts)
	}

	out = importCSV(t, svc, ImportRequest{AccountID: "acc", Mode: ledger.ModeFuzzy},
		"date,description,amount\n2026-02-01,Coffee,-3.00\n2026-02-01,Coffee,-3.00\n2026-02-02,Bakery,-6.00\n")
	if !out.Committed || len(out.Approved) != 2 {
		t.Fatalf("expected first Coffee and Bakery to be committed, got %+v", out.Approved)
	}
	if len(out.Result.Conflicts) != 1 || out.Result.Conflicts[0].ExistingID != out.Approved[0].ID {
		t.Fatalf("expected the repeated row to conflict with the first, got %+v", out.Result.Conflicts)
	}

	stored, _ := store.ListTransactions(context.Background(), "acc")
	if len(stored) != 4 {
		t.Fatalf("expected 4 stored transactions, got %d", len(stored))
	}
}
