// Package memory is an in-process Store for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"financeos/internal/core"
	"financeos/internal/storage"
)

type snapshotRow struct {
	accountID string
	snap      core.Snapshot
}

type Store struct {
	mu        sync.Mutex
	txs       []core.Transaction
	byHash    map[string]string
	batches   map[string]core.ImportBatch
	rules     []core.RecurringRule
	snapshots []snapshotRow
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		byHash:  make(map[string]string),
		batches: make(map[string]core.ImportBatch),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ListTransactions returns the account's REAL transactions ordered by date.
func (s *Store) ListTransactions(_ context.Context, accountID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.txs {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// CommitBatch checks every fingerprint before writing anything, so a
// conflicting row leaves the store untouched.
func (s *Store) CommitBatch(_ context.Context, batch core.ImportBatch, txs []core.Transaction) error {
	for _, t := range txs {
		if err := storage.CheckPersistable(t); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[batch.ID]; ok {
		return fmt.Errorf("batch %s already committed", batch.ID)
	}
	seen := make(map[string]string, len(txs))
	for _, t := range txs {
		existing, ok := s.byHash[t.Fingerprint]
		if !ok {
			existing, ok = seen[t.Fingerprint]
		}
		if ok {
			return &core.DuplicateConflictError{Fingerprint: t.Fingerprint, TransactionID: t.ID, ExistingID: existing}
		}
		seen[t.Fingerprint] = t.ID
	}

	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}
	s.batches[batch.ID] = batch
	for _, t := range txs {
		t.BatchID = batch.ID
		s.txs = append(s.txs, t)
		s.byHash[t.Fingerprint] = t.ID
	}
	return nil
}

func (s *Store) GetBatch(_ context.Context, batchID string) (core.ImportBatch, []core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return core.ImportBatch{}, nil, fmt.Errorf("batch %s: %w", batchID, storage.ErrNotFound)
	}
	var txs []core.Transaction
	for _, t := range s.txs {
		if t.BatchID == batchID {
			txs = append(txs, t)
		}
	}
	return batch, txs, nil
}

func (s *Store) ListRules(_ context.Context, accountID string, activeOnly bool) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.RecurringRule
	for _, r := range s.rules {
		if accountID != "" && r.AccountID != accountID {
			continue
		}
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CreateRule(_ context.Context, rule core.RecurringRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("rule %s already exists", rule.ID)
		}
	}
	s.rules = append(s.rules, rule)
	return nil
}

func (s *Store) UpdateRuleNextDue(_ context.Context, ruleID string, next core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == ruleID {
			s.rules[i].NextDueDate = next
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", ruleID, storage.ErrNotFound)
}

func (s *Store) SaveSnapshot(_ context.Context, accountID string, snap core.Snapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshotRow{accountID: accountID, snap: snap})
	return nil
}

// LatestSnapshot returns the most recent snapshot, or nil when there is none.
func (s *Store) LatestSnapshot(_ context.Context, accountID string) (*core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *core.Snapshot
	for i := range s.snapshots {
		row := s.snapshots[i]
		if row.accountID != accountID {
			continue
		}
		if latest == nil || !row.snap.Timestamp.Before(latest.Timestamp) {
			snap := row.snap
			latest = &snap
		}
	}
	return latest, nil
}
