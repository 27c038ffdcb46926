package ledger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"financeos/internal/core"
	"financeos/internal/csvimport"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mode selects how candidates are compared with the existing ledger.
type Mode string

const (
	// ModeExact rejects any row whose fingerprint is already held by a real
	// transaction of the account.
	ModeExact Mode = "exact"
	// ModeFuzzy flags rows that look like an existing transaction for manual
	// review without rejecting them.
	ModeFuzzy Mode = "fuzzy"
)

const (
	fuzzyAmountTolerance = "0.01"
	fuzzyDateWindowDays  = 2
	maxDescriptionLength = 255
)

// ParseMode maps a query value onto a Mode; empty means exact.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeExact:
		return ModeExact, nil
	case ModeFuzzy:
		return ModeFuzzy, nil
	default:
		return "", fmt.Errorf("unknown import mode: %q", s)
	}
}

// MalformedRow is a row that could not be turned into a complete transaction.
type MalformedRow struct {
	Transaction core.Transaction
	Err         *core.MalformedRowError
}

// SuspectedDuplicate pairs an accepted candidate with the existing
// transaction it resembles.
type SuspectedDuplicate struct {
	Transaction core.Transaction
	Existing    core.Transaction
}

// Result is the outcome of one ingest call. Accepted keeps input order.
// Conflicts holds one entry per RejectedAsDuplicate, in the same order.
type Result struct {
	Accepted            []core.Transaction
	RejectedAsDuplicate []core.Transaction
	Conflicts           []*core.DuplicateConflictError
	Malformed           []MalformedRow
	SuspectedDuplicates []SuspectedDuplicate
}

// AutoApproved returns the accepted transactions that need no review.
func (r Result) AutoApproved() []core.Transaction {
	return r.Approve()
}

// Approve returns the auto-approved transactions plus the suspected
// duplicates whose IDs are listed, preserving input order.
func (r Result) Approve(ids ...string) []core.Transaction {
	suspected := make(map[string]bool, len(r.SuspectedDuplicates))
	for _, s := range r.SuspectedDuplicates {
		suspected[s.Transaction.ID] = true
	}
	override := make(map[string]bool, len(ids))
	for _, id := range ids {
		override[id] = true
	}

	out := make([]core.Transaction, 0, len(r.Accepted))
	for _, t := range r.Accepted {
		if suspected[t.ID] && !override[t.ID] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Ingestor converts raw rows into transactions. The zero value is ready to
// use and mints UUIDs.
type Ingestor struct {
	NewID func() string
}

// Ingest runs the default Ingestor.
func Ingest(existing []core.Transaction, rows []csvimport.RawRow, accountID string, mode Mode) Result {
	return Ingestor{}.Ingest(existing, rows, accountID, mode)
}

// Ingest parses rows, fingerprints them and compares them with the existing
// ledger. It has no side effects: merging Accepted is up to the caller.
func (in Ingestor) Ingest(existing []core.Transaction, rows []csvimport.RawRow, accountID string, mode Mode) Result {
	newID := in.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	var res Result
	known := make(map[string]string)
	if mode == ModeExact {
		known = realFingerprints(existing, accountID)
	}

	for _, row := range rows {
		t, rowErr := toTransaction(row, accountID)
		t.ID = newID()
		if rowErr != nil {
			res.Malformed = append(res.Malformed, MalformedRow{Transaction: t, Err: rowErr})
			continue
		}
		t.Fingerprint = Fingerprint(accountID, t.Date, t.Amount)

		switch mode {
		case ModeFuzzy:
			if match, ok := findSimilar(t, existing); ok {
				res.SuspectedDuplicates = append(res.SuspectedDuplicates, SuspectedDuplicate{Transaction: t, Existing: match})
			}
		default:
			if existingID, dup := known[t.Fingerprint]; dup {
				res.RejectedAsDuplicate = append(res.RejectedAsDuplicate, t)
				res.Conflicts = append(res.Conflicts, &core.DuplicateConflictError{
					Fingerprint:   t.Fingerprint,
					TransactionID: t.ID,
					ExistingID:    existingID,
				})
				continue
			}
			// Two identical rows in one batch collide on the unique index too.
			known[t.Fingerprint] = t.ID
		}
		res.Accepted = append(res.Accepted, t)
	}
	return res
}

// Committable splits approved transactions into those the ledger can store
// and those whose fingerprint is already held by a real transaction of the
// account or by an earlier row of the same batch. Fuzzy mode never rejects
// on fingerprint, so this runs before every commit.
func Committable(existing, approved []core.Transaction, accountID string) ([]core.Transaction, []core.Transaction, []*core.DuplicateConflictError) {
	known := realFingerprints(existing, accountID)
	keep := make([]core.Transaction, 0, len(approved))
	var (
		rejected  []core.Transaction
		conflicts []*core.DuplicateConflictError
	)
	for _, t := range approved {
		fp := t.Fingerprint
		if fp == "" {
			fp = FingerprintOf(t)
		}
		if existingID, dup := known[fp]; dup {
			rejected = append(rejected, t)
			conflicts = append(conflicts, &core.DuplicateConflictError{
				Fingerprint:   fp,
				TransactionID: t.ID,
				ExistingID:    existingID,
			})
			continue
		}
		known[fp] = t.ID
		keep = append(keep, t)
	}
	return keep, rejected, conflicts
}

func realFingerprints(existing []core.Transaction, accountID string) map[string]string {
	known := make(map[string]string, len(existing))
	for _, t := range existing {
		if t.Status != core.StatusReal || t.AccountID != accountID {
			continue
		}
		fp := t.Fingerprint
		if fp == "" {
			fp = FingerprintOf(t)
		}
		known[fp] = t.ID
	}
	return known
}

func toTransaction(row csvimport.RawRow, accountID string) (core.Transaction, *core.MalformedRowError) {
	t := core.Transaction{
		AccountID:   accountID,
		Description: truncate(row.Description(), maxDescriptionLength),
		Category:    row.Get(csvimport.ColCategory),
		Status:      core.StatusReal,
		Amount:      decimal.Zero,
	}
	if t.Category == "" {
		t.Category = core.DefaultCategory
	}

	var rowErr *core.MalformedRowError

	rawDate := row.Get(csvimport.ColDate)
	if date, err := core.ParseDate(rawDate); err == nil {
		t.Date = date
	} else {
		rowErr = &core.MalformedRowError{Line: row.Line, Field: csvimport.ColDate, Value: rawDate, Err: err}
	}

	rawAmount := row.Get(csvimport.ColAmount)
	if amount, err := core.ParseAmount(rawAmount); err == nil {
		t.Amount = amount
	} else if rowErr == nil {
		rowErr = &core.MalformedRowError{Line: row.Line, Field: csvimport.ColAmount, Value: rawAmount, Err: err}
	}

	return t, rowErr
}

// findSimilar applies the review heuristic: amounts within a cent, dates at
// most two days apart, and the existing description containing the first
// word of the candidate's description. The token test is one-directional.
func findSimilar(candidate core.Transaction, existing []core.Transaction) (core.Transaction, bool) {
	tolerance := decimal.RequireFromString(fuzzyAmountTolerance)
	token := firstToken(candidate.Description)

	for _, e := range existing {
		if !e.Amount.Sub(candidate.Amount).Abs().LessThan(tolerance) {
			continue
		}
		days := e.Date.DaysUntil(candidate.Date)
		if days < -fuzzyDateWindowDays || days > fuzzyDateWindowDays {
			continue
		}
		if !strings.Contains(strings.ToLower(e.Description), token) {
			continue
		}
		return e, true
	}
	return core.Transaction{}, false
}

func firstToken(description string) string {
	fields := strings.Fields(strings.ToLower(description))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
