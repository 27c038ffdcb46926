// Package metrics turns the real ledger and projected bills into the numbers
// and balance series shown on the dashboard.
package metrics

import (
	"fmt"
	"sort"

	"financeos/internal/core"
	"financeos/internal/ledger"

	"github.com/shopspring/decimal"
)

const (
	// PendingWindowDays bounds which projected bills count as pending.
	PendingWindowDays = 30
	// DefaultChartDays is the burn-down length used when callers have no preference.
	DefaultChartDays = 60
)

// DefaultBufferTarget is the reserve kept out of the safe-to-spend figure.
var DefaultBufferTarget = decimal.RequireFromString("1000.00")

// BillStatus tells whether a projected bill already shows up in the ledger.
type BillStatus string

const (
	BillPending BillStatus = "pending"
	BillPaid    BillStatus = "paid"
)

// UpcomingBill is a projected debit due inside the pending window. Amount is
// a non-negative magnitude.
type UpcomingBill struct {
	ID      string
	Name    string
	DueDate core.Date
	Amount  decimal.Decimal
	Status  BillStatus
}

// BalancePoint is one day of the burn-down chart.
type BalancePoint struct {
	Date    core.Date
	Balance decimal.Decimal
}

// Dashboard is the aggregated view of one account.
type Dashboard struct {
	SafeToSpend       decimal.Decimal
	TotalBalance      decimal.Decimal
	PendingBillsTotal decimal.Decimal
	BufferTarget      decimal.Decimal
	UpcomingBills     []UpcomingBill
	BurnDownChart     []BalancePoint
}

// Input carries everything Aggregate reads. Ledger holds REAL transactions
// only and Projected holds PROJECTED ones only.
type Input struct {
	Ledger       []core.Transaction
	Projected    []core.Transaction
	BufferTarget decimal.Decimal
	AsOf         core.Date
	ChartDays    int
	Snapshot     *core.Snapshot
}

// Aggregate computes the dashboard. It is a pure function of its input and
// returns a *core.AggregationInputError, with no partial result, when the
// input is inconsistent.
func Aggregate(in Input) (Dashboard, error) {
	if err := validate(in); err != nil {
		return Dashboard{}, err
	}

	asOf := core.DateOf(in.AsOf.Time)
	pendingEnd := asOf.AddDays(PendingWindowDays)

	total := decimal.Zero
	paid := make(map[string]bool, len(in.Ledger))
	for _, t := range in.Ledger {
		total = total.Add(t.Amount)
		fp := t.Fingerprint
		if fp == "" {
			fp = ledger.FingerprintOf(t)
		}
		paid[fp] = true
	}

	pending := decimal.Zero
	var bills []UpcomingBill
	for _, p := range in.Projected {
		if !p.IsDebit() || p.Date.Before(asOf) || !p.Date.Before(pendingEnd) {
			continue
		}
		magnitude := p.Amount.Neg()
		pending = pending.Add(magnitude)

		status := BillPending
		if paid[ledger.FingerprintOf(p)] {
			status = BillPaid
		}
		bills = append(bills, UpcomingBill{
			ID:      p.ID,
			Name:    p.Description,
			DueDate: p.Date,
			Amount:  magnitude,
			Status:  status,
		})
	}
	sort.SliceStable(bills, func(i, j int) bool {
		if !bills[i].DueDate.Equal(bills[j].DueDate) {
			return bills[i].DueDate.Before(bills[j].DueDate)
		}
		return bills[i].ID < bills[j].ID
	})

	return Dashboard{
		SafeToSpend:       total.Sub(pending).Sub(in.BufferTarget),
		TotalBalance:      total,
		PendingBillsTotal: pending,
		BufferTarget:      in.BufferTarget,
		UpcomingBills:     bills,
		BurnDownChart:     burnDown(in, asOf, total),
	}, nil
}

// burnDown walks ChartDays calendar days from asOf. Without a snapshot the
// series opens at the ledger balance before asOf, so ledger rows dated on or
// after asOf are counted once, on their own day.
func burnDown(in Input, asOf core.Date, total decimal.Decimal) []BalancePoint {
	if in.ChartDays == 0 {
		return nil
	}
	end := asOf.AddDays(in.ChartDays)

	daily := make(map[string]decimal.Decimal)
	opening := total
	add := func(t core.Transaction) {
		if t.Date.Before(asOf) || !t.Date.Before(end) {
			return
		}
		day := t.Date.String()
		daily[day] = daily[day].Add(t.Amount)
	}
	for _, t := range in.Ledger {
		if !t.Date.Before(asOf) {
			opening = opening.Sub(t.Amount)
		}
		add(t)
	}
	for _, t := range in.Projected {
		add(t)
	}
	if in.Snapshot != nil {
		opening = in.Snapshot.Balance
	}

	points := make([]BalancePoint, 0, in.ChartDays)
	balance := opening
	for i := 0; i < in.ChartDays; i++ {
		day := asOf.AddDays(i)
		balance = balance.Add(daily[day.String()])
		points = append(points, BalancePoint{Date: day, Balance: balance})
	}
	return points
}

func validate(in Input) error {
	if in.AsOf.IsZero() {
		return &core.AggregationInputError{Field: "asOf", Reason: "is required"}
	}
	if in.ChartDays < 0 {
		return &core.AggregationInputError{Field: "chartDays", Reason: fmt.Sprintf("must not be negative, got %d", in.ChartDays)}
	}
	if in.BufferTarget.IsNegative() {
		return &core.AggregationInputError{Field: "bufferTarget", Reason: "must not be negative"}
	}
	for _, t := range in.Ledger {
		if t.Status != core.StatusReal {
			return &core.AggregationInputError{Field: "ledger", Reason: fmt.Sprintf("transaction %s has status %s", t.ID, t.Status)}
		}
	}
	for _, t := range in.Projected {
		if t.Status != core.StatusProjected {
			return &core.AggregationInputError{Field: "projected", Reason: fmt.Sprintf("transaction %s has status %s", t.ID, t.Status)}
		}
	}
	return nil
}
