// Package storage persists the ledger, recurring rules and balance snapshots
// in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"financeos/internal/core"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db *sql.DB
}

// DSN builds the connection string used for both the pool and migrations.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const transactionColumns = `id, account_id, date, amount, description, category, hash_id, status, COALESCE(batch_id, '')`

// ListTransactions implements TransactionStore.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, accountID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? AND status = 'REAL' ORDER BY date, created_at, id`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// CommitBatch implements TransactionStore.
func (r *SQLiteRepository) CommitBatch(ctx context.Context, batch core.ImportBatch, txs []core.Transaction) error {
	for _, t := range txs {
		if err := CheckPersistable(t); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	createdAt := batch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	stamp := createdAt.UTC().Format(timestampLayout)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO import_batches (id, account_id, mode, accepted, rejected, malformed, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.AccountID, batch.Mode, batch.Accepted, batch.Rejected, batch.Malformed, stamp); err != nil {
		return fmt.Errorf("insert import batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (id, account_id, date, amount, description, category, hash_id, status, batch_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		_, err := stmt.ExecContext(ctx,
			t.ID, t.AccountID, t.Date.String(), core.FormatAmount(t.Amount),
			t.Description, t.Category, t.Fingerprint, string(t.Status), batch.ID, stamp)
		if err == nil {
			continue
		}
		if isUniqueViolation(err) {
			conflict := &core.DuplicateConflictError{Fingerprint: t.Fingerprint, TransactionID: t.ID}
			_ = tx.QueryRowContext(ctx, `SELECT id FROM transactions WHERE hash_id = ?`, t.Fingerprint).Scan(&conflict.ExistingID)
			slog.WarnContext(ctx, "Batch rejected by unique fingerprint",
				"batch_id", batch.ID,
				"transaction_id", t.ID,
				"existing_id", conflict.ExistingID)
			return conflict
		}
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	slog.InfoContext(ctx, "Import batch committed",
		"batch_id", batch.ID,
		"account_id", batch.AccountID,
		"transactions", len(txs))
	return nil
}

// GetBatch implements TransactionStore.
func (r *SQLiteRepository) GetBatch(ctx context.Context, batchID string) (core.ImportBatch, []core.Transaction, error) {
	var (
		batch   core.ImportBatch
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, mode, accepted, rejected, malformed, created_at FROM import_batches WHERE id = ?`, batchID).
		Scan(&batch.ID, &batch.AccountID, &batch.Mode, &batch.Accepted, &batch.Rejected, &batch.Malformed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportBatch{}, nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return core.ImportBatch{}, nil, fmt.Errorf("get import batch: %w", err)
	}
	if batch.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return core.ImportBatch{}, nil, fmt.Errorf("parse batch timestamp: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE batch_id = ? ORDER BY date, id`, batchID)
	if err != nil {
		return core.ImportBatch{}, nil, fmt.Errorf("get batch transactions: %w", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return core.ImportBatch{}, nil, err
	}
	return batch, txs, nil
}

const ruleColumns = `id, account_id, name, pattern, expected_amount, frequency, next_due_date, category, is_active`

// ListRules implements RuleStore.
func (r *SQLiteRepository) ListRules(ctx context.Context, accountID string, activeOnly bool) ([]core.RecurringRule, error) {
	var (
		where []string
		args  []any
	)
	if accountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, accountID)
	}
	if activeOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + ruleColumns + ` FROM recurring_rules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.RecurringRule
	for rows.Next() {
		var (
			rule        core.RecurringRule
			amount, due string
			frequency   string
		)
		if err := rows.Scan(&rule.ID, &rule.AccountID, &rule.Name, &rule.Pattern, &amount,
			&frequency, &due, &rule.Category, &rule.Active); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if rule.ExpectedAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("rule %s amount: %w", rule.ID, err)
		}
		if rule.NextDueDate, err = core.ParseDate(due); err != nil {
			return nil, fmt.Errorf("rule %s next due date: %w", rule.ID, err)
		}
		rule.Frequency = core.Frequency(frequency)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// CreateRule implements RuleStore.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	now := time.Now().UTC().Format(timestampLayout)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_rules (`+ruleColumns+`, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.AccountID, rule.Name, rule.Pattern, core.FormatAmount(rule.ExpectedAmount),
		string(rule.Frequency), rule.NextDueDate.String(), rule.Category, rule.Active, now, now)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule created",
		"rule_id", rule.ID,
		"account_id", rule.AccountID,
		"frequency", rule.Frequency)
	return nil
}

// UpdateRuleNextDue implements RuleStore.
func (r *SQLiteRepository) UpdateRuleNextDue(ctx context.Context, ruleID string, next core.Date) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_rules SET next_due_date = ?, updated_at = ? WHERE id = ?`,
		next.String(), time.Now().UTC().Format(timestampLayout), ruleID)
	if err != nil {
		return fmt.Errorf("update rule next due date: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

// SaveSnapshot implements SnapshotStore.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, accountID string, snap core.Snapshot) error {
	taken := snap.Timestamp
	if taken.IsZero() {
		taken = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO snapshots (account_id, account_name, balance, taken_at) VALUES (?, ?, ?, ?)`,
		accountID, snap.AccountName, core.FormatAmount(snap.Balance), taken.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot implements SnapshotStore.
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, accountID string) (*core.Snapshot, error) {
	var (
		snap           core.Snapshot
		balance, taken string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT account_name, balance, taken_at FROM snapshots WHERE account_id = ? ORDER BY taken_at DESC, id DESC LIMIT 1`,
		accountID).Scan(&snap.AccountName, &balance, &taken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("snapshot balance: %w", err)
	}
	if snap.Timestamp, err = time.Parse(timestampLayout, taken); err != nil {
		return nil, fmt.Errorf("snapshot timestamp: %w", err)
	}
	return &snap, nil
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var txs []core.Transaction
	for rows.Next() {
		var (
			t            core.Transaction
			date, amount string
			status       string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &date, &amount, &t.Description,
			&t.Category, &t.Fingerprint, &status, &t.BatchID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var err error
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s date: %w", t.ID, err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", t.ID, err)
		}
		t.Status = core.Status(status)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
