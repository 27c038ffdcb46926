// Package ledger turns raw import rows into real ledger transactions and
// decides which of them are already known.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"financeos/internal/core"

	"github.com/shopspring/decimal"
)

// Fingerprint returns the duplicate-detection key of a transaction: a
// SHA-256 over the account, the canonical calendar date and the amount
// fixed at two decimals. Description and category never take part, so the
// same movement exported by two different tools collapses to one key.
func Fingerprint(accountID string, date core.Date, amount decimal.Decimal) string {
	parts := []string{
		"account:" + strings.TrimSpace(accountID),
		"date:" + core.DateOf(date.Time).String(),
		"amount:" + amount.StringFixed(core.CentPlaces),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// FingerprintOf computes the fingerprint of an existing transaction.
func FingerprintOf(t core.Transaction) string {
	return Fingerprint(t.AccountID, t.Date, t.Amount)
}
