package metrics

import (
	"errors"
	"testing"

	"financeos/internal/core"

	"github.com/shopspring/decimal"
)

var asOf = core.NewDate(2026, 1, 1)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func realTx(id string, date core.Date, amount string) core.Transaction {
	return core.Transaction{ID: id, AccountID: "acct", Date: date, Amount: dec(amount), Description: id, Status: core.StatusReal}
}

func ghostTx(id string, date core.Date, amount string) core.Transaction {
	return core.Transaction{ID: id, AccountID: "acct", Date: date, Amount: dec(amount), Description: "Bill " + id, Status: core.StatusProjected}
}

func sampleInput() Input {
	return Input{
		Ledger: []core.Transaction{
			realTx("salary", core.NewDate(2025, 12, 1), "4000.00"),
			realTx("groceries", core.NewDate(2025, 12, 5), "-80.00"),
		},
		Projected: []core.Transaction{
			ghostTx("rent_2026-01-01", asOf, "-2000.00"),
			ghostTx("phone_2026-01-20", core.NewDate(2026, 1, 20), "-360.00"),
			ghostTx("refund_2026-01-10", core.NewDate(2026, 1, 10), "100.00"),
			ghostTx("gym_2026-01-31", core.NewDate(2026, 1, 31), "-50.00"),
		},
		BufferTarget: dec("880.00"),
		AsOf:         asOf,
		ChartDays:    DefaultChartDays,
	}
}

func TestAggregate_SafeToSpend(t *testing.T) {
	got, err := Aggregate(sampleInput())
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"total balance", got.TotalBalance, "3920.00"},
		{"pending bills", got.PendingBillsTotal, "2360.00"},
		{"buffer", got.BufferTarget, "880.00"},
		{"safe to spend", got.SafeToSpend, "680.00"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got.StringFixed(2), c.want)
		}
	}
}

func TestAggregate_UpcomingBills(t *testing.T) {
	in := sampleInput()
	in.Ledger = append(in.Ledger, realTx("phone-paid", core.NewDate(2026, 1, 20), "-360.00"))

	got, err := Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(got.UpcomingBills) != 2 {
		t.Fatalf("UpcomingBills has %d entries, want 2", len(got.UpcomingBills))
	}

	rent, phone := got.UpcomingBills[0], got.UpcomingBills[1]
	if rent.ID != "rent_2026-01-01" || rent.Status != BillPending || !rent.Amount.Equal(dec("2000")) {
		t.Errorf("unexpected first bill %+v", rent)
	}
	if phone.Name != "Bill phone_2026-01-20" || phone.Status != BillPaid {
		t.Errorf("unexpected second bill %+v", phone)
	}
	if !got.PendingBillsTotal.Equal(dec("2360.00")) {
		t.Errorf("PendingBillsTotal = %s, paid bills still count", got.PendingBillsTotal)
	}
}

func TestAggregate_BurnDown(t *testing.T) {
	got, err := Aggregate(sampleInput())
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if len(got.BurnDownChart) != 60 {
		t.Fatalf("BurnDownChart has %d points, want 60", len(got.BurnDownChart))
	}
	for i, p := range got.BurnDownChart {
		if want := asOf.AddDays(i); !p.Date.Equal(want) {
			t.Fatalf("point %d date = %s, want %s", i, p.Date, want)
		}
	}

	tests := []struct {
		day  int
		want string
	}{
		{0, "1920.00"},
		{8, "1920.00"},
		{9, "2020.00"},
		{19, "1660.00"},
		{30, "1610.00"},
		{59, "1610.00"},
	}
	for _, tt := range tests {
		if got := got.BurnDownChart[tt.day].Balance; !got.Equal(dec(tt.want)) {
			t.Errorf("day %d balance = %s, want %s", tt.day, got.StringFixed(2), tt.want)
		}
	}
}

func TestAggregate_BurnDownCountsFutureLedgerRowsOnce(t *testing.T) {
	in := Input{
		Ledger: []core.Transaction{
			realTx("opening", core.NewDate(2025, 12, 1), "1000.00"),
			realTx("today", asOf, "-100.00"),
			realTx("later", core.NewDate(2026, 1, 3), "-50.00"),
		},
		AsOf:      asOf,
		ChartDays: 4,
	}

	got, err := Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	want := []string{"900.00", "900.00", "850.00", "850.00"}
	for i, w := range want {
		if !got.BurnDownChart[i].Balance.Equal(dec(w)) {
			t.Errorf("day %d balance = %s, want %s", i, got.BurnDownChart[i].Balance.StringFixed(2), w)
		}
	}
	if !got.TotalBalance.Equal(dec("850.00")) {
		t.Errorf("TotalBalance = %s, want 850.00", got.TotalBalance)
	}
}

func TestAggregate_SnapshotStartsBurnDown(t *testing.T) {
	in := sampleInput()
	in.Snapshot = &core.Snapshot{Balance: dec("2500.00"), AccountName: "Checking"}

	got, err := Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if !got.BurnDownChart[0].Balance.Equal(dec("500.00")) {
		t.Errorf("day 0 balance = %s, want 500.00", got.BurnDownChart[0].Balance)
	}
	if !got.TotalBalance.Equal(dec("3920.00")) {
		t.Errorf("TotalBalance = %s, snapshot must not change it", got.TotalBalance)
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	got, err := Aggregate(Input{AsOf: asOf, ChartDays: 3})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if !got.SafeToSpend.IsZero() || len(got.UpcomingBills) != 0 || len(got.BurnDownChart) != 3 {
		t.Errorf("unexpected dashboard %+v", got)
	}
}

func TestAggregate_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"negative chart days", func(in *Input) { in.ChartDays = -1 }, "chartDays"},
		{"negative buffer", func(in *Input) { in.BufferTarget = dec("-1") }, "bufferTarget"},
		{"missing asOf", func(in *Input) { in.AsOf = core.Date{} }, "asOf"},
		{"projected row in ledger", func(in *Input) { in.Ledger = append(in.Ledger, ghostTx("x", asOf, "-1")) }, "ledger"},
		{"real row in projection", func(in *Input) { in.Projected = append(in.Projected, realTx("y", asOf, "-1")) }, "projected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInput()
			tt.mutate(&in)

			got, err := Aggregate(in)
			var inputErr *core.AggregationInputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("Aggregate() error = %v, want AggregationInputError", err)
			}
			if inputErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", inputErr.Field, tt.field)
			}
			if got.BurnDownChart != nil || got.UpcomingBills != nil {
				t.Error("Aggregate() returned a partial payload")
			}
		})
	}
}
