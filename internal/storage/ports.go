package storage

import (
	"context"
	"errors"

	"financeos/internal/core"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotPersistable is returned for transactions that must never reach
	// the ledger, such as projected ones or rows without a fingerprint.
	ErrNotPersistable = errors.New("transaction cannot be persisted")
)

// TransactionStore is the authoritative ledger of REAL transactions.
type TransactionStore interface {
	ListTransactions(ctx context.Context, accountID string) ([]core.Transaction, error)
	// CommitBatch writes the batch audit row and every transaction
	// atomically. A fingerprint collision aborts the whole batch with a
	// *core.DuplicateConflictError.
	CommitBatch(ctx context.Context, batch core.ImportBatch, txs []core.Transaction) error
	GetBatch(ctx context.Context, batchID string) (core.ImportBatch, []core.Transaction, error)
}

// RuleStore holds recurring bill rules.
type RuleStore interface {
	// ListRules returns the rules of an account, or of every account when
	// accountID is empty.
	ListRules(ctx context.Context, accountID string, activeOnly bool) ([]core.RecurringRule, error)
	CreateRule(ctx context.Context, rule core.RecurringRule) error
	UpdateRuleNextDue(ctx context.Context, ruleID string, next core.Date) error
}

// SnapshotStore keeps point-in-time balances.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, accountID string, snap core.Snapshot) error
	// LatestSnapshot returns nil without error when the account has none.
	LatestSnapshot(ctx context.Context, accountID string) (*core.Snapshot, error)
}

// Store is everything the services need from persistence.
type Store interface {
	TransactionStore
	RuleStore
	SnapshotStore
	Ping(ctx context.Context) error
	Close() error
}

// CheckPersistable rejects transactions that are not fit for the ledger.
func CheckPersistable(t core.Transaction) error {
	if t.Status != core.StatusReal {
		return errors.Join(ErrNotPersistable, core.ErrInvalidStatus)
	}
	if t.Fingerprint == "" || t.ID == "" {
		return ErrNotPersistable
	}
	return t.Validate()
}
