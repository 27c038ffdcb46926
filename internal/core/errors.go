package core

import (
	"fmt"
)

// MalformedRowError marks an import row missing a required field. The row is
// kept out of auto-acceptance but the rest of the batch still imports.
type MalformedRowError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *MalformedRowError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: missing %s", e.Line, e.Field)
	}
	return fmt.Sprintf("row %d: invalid %s %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// InvalidRuleError is returned for a recurring rule that cannot be projected.
type InvalidRuleError struct {
	RuleID    string
	Frequency Frequency
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("rule %q: unknown frequency %q", e.RuleID, e.Frequency)
}

// DuplicateConflictError describes a transaction whose fingerprint is already
// present among the account's real transactions.
type DuplicateConflictError struct {
	Fingerprint   string
	TransactionID string
	ExistingID    string
}

func (e *DuplicateConflictError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("duplicate transaction %s (fingerprint %s)", e.TransactionID, e.Fingerprint)
	}
	return fmt.Sprintf("duplicate transaction %s: fingerprint %s already held by %s", e.TransactionID, e.Fingerprint, e.ExistingID)
}

// AggregationInputError reports inputs that make a projection or dashboard
// request meaningless, such as a negative window.
type AggregationInputError struct {
	Field  string
	Reason string
}

func (e *AggregationInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
