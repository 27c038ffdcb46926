package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"financeos/internal/amqp"
	"financeos/internal/core"
	"financeos/internal/csvimport"
	"financeos/internal/ledger"
	"financeos/internal/log"
	"financeos/internal/storage"
)

// ErrInvalidImport marks problems with the uploaded file or its parameters.
var ErrInvalidImport = errors.New("invalid import")

// Publisher announces committed imports.
type Publisher interface {
	PublishImportCompleted(ctx context.Context, msg *amqp.ImportCompletedMessage) error
}

// Invalidator drops cached read models of an account.
type Invalidator interface {
	Invalidate(accountID string)
}

type ImportRequest struct {
	AccountID string
	Mode      ledger.Mode
	// DryRun runs the review without writing anything.
	DryRun bool
	// Approve lists suspected duplicates the caller accepts anyway.
	Approve []string
	Body    io.Reader
}

type ImportOutcome struct {
	Batch     core.ImportBatch
	Result    ledger.Result
	Approved  []core.Transaction
	Committed bool
}

// ImportService runs the review and commit workflow for CSV imports.
type ImportService struct {
	store       storage.TransactionStore
	publisher   Publisher
	invalidator Invalidator
	ingestor    ledger.Ingestor
	events      *log.StructuredLogger
	now         func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewImportService wires the import workflow. publisher and invalidator may be nil.
func NewImportService(store storage.TransactionStore, publisher Publisher, invalidator Invalidator) *ImportService {
	return &ImportService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		events:      log.NewStructuredLogger(log.New(log.Config{Component: log.ComponentImport, Handler: slog.Default().Handler()})),
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *ImportService) accountLock(accountID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[accountID] = m
	}
	return m
}

// Import parses the CSV, filters it against the account's ledger and, unless
// DryRun is set, commits the approved rows as one batch. Loading the ledger and
// committing happen under a per-account lock.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (ImportOutcome, error) {
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		return ImportOutcome{}, fmt.Errorf("%w: %w", ErrInvalidImport, core.ErrEmptyAccount)
	}
	if req.Body == nil {
		return ImportOutcome{}, fmt.Errorf("%w: missing body", ErrInvalidImport)
	}
	mode := req.Mode
	if mode == "" {
		mode = ledger.ModeExact
	}

	rows, err := csvimport.Parse(req.Body)
	if err != nil {
		return ImportOutcome{}, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.ListTransactions(ctx, accountID)
	if err != nil {
		return ImportOutcome{}, fmt.Errorf("load ledger: %w", err)
	}

	res := s.ingestor.Ingest(existing, rows, accountID, mode)
	approved, rejected, conflicts := ledger.Committable(existing, res.Approve(req.Approve...), accountID)
	res.RejectedAsDuplicate = append(res.RejectedAsDuplicate, rejected...)
	res.Conflicts = append(res.Conflicts, conflicts...)
	out := ImportOutcome{
		Result:   res,
		Approved: approved,
	}
	out.Batch = core.ImportBatch{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Mode:      string(mode),
		Accepted:  len(out.Approved),
		Rejected:  len(res.RejectedAsDuplicate),
		Malformed: len(res.Malformed),
		CreatedAt: s.now().UTC(),
	}

	if req.DryRun || len(out.Approved) == 0 {
		s.logOutcome(ctx, out)
		return out, nil
	}

	for i := range out.Approved {
		out.Approved[i].BatchID = out.Batch.ID
	}
	if err := s.store.CommitBatch(ctx, out.Batch, out.Approved); err != nil {
		s.events.LogError(ctx, "Failed to commit import batch", err, log.ComponentImport, log.OpImport,
			log.NewFields().WithAccount(accountID))
		return ImportOutcome{}, fmt.Errorf("commit batch %s: %w", out.Batch.ID, err)
	}
	out.Committed = true

	if s.invalidator != nil {
		s.invalidator.Invalidate(accountID)
	}
	s.publish(ctx, out.Batch)
	s.logOutcome(ctx, out)
	return out, nil
}

func (s *ImportService) publish(ctx context.Context, batch core.ImportBatch) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, skipping import event", "batch_id", batch.ID)
		return
	}
	msg := amqp.NewImportCompletedMessage(batch.ID, batch.AccountID, batch.Accepted)
	if err := s.publisher.PublishImportCompleted(ctx, msg); err != nil {
		// The batch is committed; downstream consumers can catch up from import_batches.
		slog.ErrorContext(ctx, "Failed to publish import event",
			"batch_id", batch.ID,
			"account_id", batch.AccountID,
			"error", err)
	}
}

func (s *ImportService) logOutcome(ctx context.Context, out ImportOutcome) {
	batchID := ""
	if out.Committed {
		batchID = out.Batch.ID
	}
	s.events.LogImport(ctx, out.Batch.AccountID, batchID, out.Batch.Mode,
		len(out.Approved), len(out.Result.RejectedAsDuplicate), len(out.Result.Malformed),
		len(out.Result.SuspectedDuplicates), out.Committed)
}
