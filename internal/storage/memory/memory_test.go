package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"financeos/internal/core"
	"financeos/internal/storage"

	"github.com/shopspring/decimal"
)

func testTx(id, fingerprint string, day int) core.Transaction {
	return core.Transaction{
		ID:          id,
		AccountID:   "acct",
		Date:        core.NewDate(2024, 1, day),
		Amount:      decimal.RequireFromString("-5"),
		Category:    core.DefaultCategory,
		Fingerprint: fingerprint,
		Status:      core.StatusReal,
	}
}

func TestStore_CommitBatch(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CommitBatch(ctx, core.ImportBatch{ID: "b1", AccountID: "acct"}, []core.Transaction{
		testTx("t2", "fp-2", 20),
		testTx("t1", "fp-1", 10),
	}); err != nil {
		t.Fatalf("CommitBatch() error = %v", err)
	}

	got, _ := s.ListTransactions(ctx, "acct")
	if len(got) != 2 || got[0].ID != "t1" || got[0].BatchID != "b1" {
		t.Fatalf("ListTransactions() = %+v", got)
	}

	tests := []struct {
		name string
		txs  []core.Transaction
	}{
		{"conflict with ledger", []core.Transaction{testTx("t3", "fp-3", 11), testTx("t4", "fp-1", 10)}},
		{"conflict within batch", []core.Transaction{testTx("t5", "fp-5", 12), testTx("t6", "fp-5", 12)}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CommitBatch(ctx, core.ImportBatch{ID: "x" + string(rune('a'+i)), AccountID: "acct"}, tt.txs)
			var conflict *core.DuplicateConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("CommitBatch() error = %v, want DuplicateConflictError", err)
			}
			got, _ := s.ListTransactions(ctx, "acct")
			if len(got) != 2 {
				t.Errorf("ledger has %d rows, want 2", len(got))
			}
		})
	}
}

func TestStore_RejectsProjected(t *testing.T) {
	tx := testTx("g", "fp", 1)
	tx.Status = core.StatusProjected
	err := New().CommitBatch(context.Background(), core.ImportBatch{ID: "b"}, []core.Transaction{tx})
	if !errors.Is(err, storage.ErrNotPersistable) {
		t.Errorf("CommitBatch() error = %v, want ErrNotPersistable", err)
	}
}

func TestStore_RulesAndSnapshots(t *testing.T) {
	ctx := context.Background()
	s := New()

	rule := core.RecurringRule{ID: "r1", AccountID: "acct", Name: "Rent", ExpectedAmount: decimal.RequireFromString("900"),
		Frequency: core.Monthly, NextDueDate: core.NewDate(2024, 1, 1), Active: true}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if err := s.CreateRule(ctx, rule); err == nil {
		t.Error("CreateRule() expected duplicate id error")
	}
	if err := s.UpdateRuleNextDue(ctx, "r1", core.NewDate(2024, 2, 1)); err != nil {
		t.Fatalf("UpdateRuleNextDue() error = %v", err)
	}
	rules, _ := s.ListRules(ctx, "acct", true)
	if len(rules) != 1 || !rules[0].NextDueDate.Equal(core.NewDate(2024, 2, 1)) {
		t.Errorf("ListRules() = %+v", rules)
	}

	now := time.Now()
	_ = s.SaveSnapshot(ctx, "acct", core.Snapshot{Timestamp: now.Add(-time.Hour), Balance: decimal.NewFromInt(1)})
	_ = s.SaveSnapshot(ctx, "acct", core.Snapshot{Timestamp: now, Balance: decimal.NewFromInt(2)})
	_ = s.SaveSnapshot(ctx, "other", core.Snapshot{Timestamp: now.Add(time.Hour), Balance: decimal.NewFromInt(3)})

	snap, _ := s.LatestSnapshot(ctx, "acct")
	if snap == nil || !snap.Balance.Equal(decimal.NewFromInt(2)) {
		t.Errorf("LatestSnapshot() = %+v", snap)
	}
}
