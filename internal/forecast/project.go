package forecast

import (
	"errors"
	"fmt"
	"sort"

	"financeos/internal/core"
)

// GhostID is the deterministic identifier of a projected occurrence.
func GhostID(ruleID string, date core.Date) string {
	return fmt.Sprintf("%s_%s", ruleID, date)
}

// Project expands every rule into PROJECTED transactions dated in the
// closed window [asOf, asOf+horizonDays]. A zero horizon projects nothing.
// Each rule starts at the later of
// its next due date and asOf. Rules with an unknown frequency are reported as
// *core.InvalidRuleError, joined into the returned error, while the remaining
// rules still project. Output is ordered by date, then by rule order.
func Project(rules []core.RecurringRule, horizonDays int, asOf core.Date) ([]core.Transaction, error) {
	if horizonDays < 0 {
		return nil, &core.AggregationInputError{Field: "horizonDays", Reason: fmt.Sprintf("must not be negative, got %d", horizonDays)}
	}

	asOf = core.DateOf(asOf.Time)
	end := asOf.AddDays(horizonDays)

	var (
		out  []core.Transaction
		errs []error
	)
	for _, rule := range rules {
		stepper, err := GetStepper(rule.Frequency)
		if err != nil {
			errs = append(errs, &core.InvalidRuleError{RuleID: rule.ID, Frequency: rule.Frequency})
			continue
		}
		if horizonDays == 0 {
			continue
		}
		out = append(out, projectRule(rule, stepper, asOf, end)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	return out, errors.Join(errs...)
}

func projectRule(rule core.RecurringRule, stepper Stepper, asOf, end core.Date) []core.Transaction {
	start := core.MaxDate(core.DateOf(rule.NextDueDate.Time), asOf)
	if rule.NextDueDate.IsZero() {
		start = asOf
	}

	category := rule.Category
	if category == "" {
		category = core.DefaultCategory
	}
	amount := rule.BillAmount()

	var (
		out  []core.Transaction
		prev core.Date
	)
	for n := 0; ; n++ {
		date := stepper.Occurrence(start, n)
		if date.After(end) || (n > 0 && !date.After(prev)) {
			break
		}
		prev = date
		out = append(out, core.Transaction{
			ID:          GhostID(rule.ID, date),
			AccountID:   rule.AccountID,
			Date:        date,
			Amount:      amount,
			Description: rule.Name,
			Category:    category,
			Status:      core.StatusProjected,
			RuleID:      rule.ID,
		})
	}
	return out
}
