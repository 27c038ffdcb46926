package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"financeos/internal/core"
	"financeos/internal/forecast"
	"financeos/internal/storage"
)

// ReconcileStore is what the reconciler reads and writes.
type ReconcileStore interface {
	storage.TransactionStore
	storage.RuleStore
}

// RuleReconciler advances the next due date of recurring rules whose bill
// has shown up in the ledger.
type RuleReconciler struct {
	store        ReconcileStore
	lookbackDays int
	invalidator  Invalidator
}

// NewRuleReconciler creates a reconciler. A payment counts for an occurrence
// when it is dated within lookbackDays of the due date.
func NewRuleReconciler(store ReconcileStore, lookbackDays int, invalidator Invalidator) *RuleReconciler {
	if lookbackDays < 0 {
		lookbackDays = 0
	}
	return &RuleReconciler{
		store:        store,
		lookbackDays: lookbackDays,
		invalidator:  invalidator,
	}
}

// Reconcile processes every active rule that is due on or before now and
// returns how many occurrences were marked paid.
func (p *RuleReconciler) Reconcile(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("reconciler not properly initialized")
	}

	rules, err := p.store.ListRules(ctx, "", true)
	if err != nil {
		return 0, fmt.Errorf("failed to get active rules: %w", err)
	}

	today := core.DateOf(now)
	slog.InfoContext(ctx, "Reconciling recurring rules",
		"total_active", len(rules),
		"as_of", today.String())

	ledgers := make(map[string][]core.Transaction)
	used := make(map[string]bool)
	touched := make(map[string]bool)
	advanced := 0

	for _, rule := range rules {
		if rule.NextDueDate.After(today) {
			continue
		}

		txs, ok := ledgers[rule.AccountID]
		if !ok {
			txs, err = p.store.ListTransactions(ctx, rule.AccountID)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to load ledger for rule",
					"rule_id", rule.ID,
					"account_id", rule.AccountID,
					"error", err)
				continue
			}
			ledgers[rule.AccountID] = txs
		}

		next, n, err := p.advance(rule, txs, today, used)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to step recurring rule",
				"rule_id", rule.ID,
				"frequency", rule.Frequency,
				"error", err)
			continue
		}
		if n == 0 {
			continue
		}

		if err := p.store.UpdateRuleNextDue(ctx, rule.ID, next); err != nil {
			slog.ErrorContext(ctx, "Failed to update next due date",
				"rule_id", rule.ID,
				"error", err)
			continue
		}

		advanced += n
		touched[rule.AccountID] = true
		slog.InfoContext(ctx, "Recurring rule reconciled",
			"rule_id", rule.ID,
			"name", rule.Name,
			"occurrences", n,
			"next_due_date", next.String())
	}

	if p.invalidator != nil {
		for accountID := range touched {
			p.invalidator.Invalidate(accountID)
		}
	}

	slog.InfoContext(ctx, "Recurring rule reconciliation complete",
		"advanced", advanced,
		"total_checked", len(rules))

	return advanced, nil
}

// advance steps the rule past every due occurrence that has a matching,
// not yet claimed debit. It stops at the first unpaid occurrence.
func (p *RuleReconciler) advance(rule core.RecurringRule, txs []core.Transaction, today core.Date, used map[string]bool) (core.Date, int, error) {
	stepper, err := forecast.GetStepper(rule.Frequency)
	if err != nil {
		return rule.NextDueDate, 0, err
	}
	due := rule.NextDueDate
	n := 0
	for !due.After(today) {
		tx, ok := p.findPayment(rule, txs, due, today, used)
		if !ok {
			break
		}
		used[tx.ID] = true
		n++
		due = stepper.Occurrence(rule.NextDueDate, n)
	}
	return due, n, nil
}

func (p *RuleReconciler) findPayment(rule core.RecurringRule, txs []core.Transaction, due, today core.Date, used map[string]bool) (core.Transaction, bool) {
	from := due.AddDays(-p.lookbackDays)
	to := due.AddDays(p.lookbackDays)
	if to.After(today) {
		to = today
	}
	for _, t := range txs {
		if used[t.ID] || t.Status != core.StatusReal || !t.IsDebit() {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		if rule.Matches(t.Description) {
			return t, true
		}
	}
	return core.Transaction{}, false
}
