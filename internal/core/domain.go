package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Annual  Frequency = "ANNUAL"
)

const (
	StatusReal      Status = "REAL"
	StatusProjected Status = "PROJECTED"
)

// DefaultCategory is assigned to transactions imported without a category.
const DefaultCategory = "Uncategorized"

const dateLayout = "2006-01-02"

type (
	Frequency string

	Status string

	// Date is a calendar date, always held at UTC midnight.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string
		AccountID   string
		Date        Date
		Amount      decimal.Decimal
		Description string
		Category    string
		Fingerprint string
		Status      Status
		RuleID      string // Set on projected transactions only
		BatchID     string // Set on persisted transactions only
	}

	RecurringRule struct {
		ID             string
		AccountID      string
		Name           string
		Pattern        string
		ExpectedAmount decimal.Decimal
		Frequency      Frequency
		NextDueDate    Date
		Category       string
		Active         bool
	}

	Snapshot struct {
		Timestamp   time.Time
		Balance     decimal.Decimal
		AccountName string
	}

	// ImportBatch records one committed import for auditing.
	ImportBatch struct {
		ID        string
		AccountID string
		Mode      string
		Accepted  int
		Rejected  int
		Malformed int
		CreatedAt time.Time
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyAccount     = errors.New("empty account id")
	ErrInvalidStatus    = errors.New("invalid status")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day from t, keeping the calendar date as seen in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

var parseLayouts = []string{
	dateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate accepts the date formats seen in bank exports and returns the
// canonical calendar date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonths moves n calendar months forward keeping day as the target
// day-of-month, clamped to the last day of the resulting month.
func (d Date) AddMonths(n int, day int) Date {
	first := time.Date(d.Year(), d.Time.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return Date{Time: time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

// DaysUntil returns the signed number of calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Equal reports whether both dates are the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// MaxDate returns the later of two dates.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseFrequency maps user input onto a known frequency. YEARLY is accepted
// as an alias of ANNUAL.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if f == "YEARLY" {
		f = Annual
	}
	if !f.IsValid() {
		return f, fmt.Errorf("unknown frequency: %q", s)
	}
	return f, nil
}

func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly, Annual:
		return true
	default:
		return false
	}
}

func (s Status) IsValid() bool {
	return s == StatusReal || s == StatusProjected
}

// IsDebit reports whether the transaction takes money out of the account.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyAccount
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Status.IsValid() {
		return ErrInvalidStatus
	}
	if len(t.Description) > 255 {
		return errors.New("description too long (max 255 characters)")
	}
	return nil
}

func (r RecurringRule) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, ErrEmptyName)
	}
	if strings.TrimSpace(r.AccountID) == "" {
		errs = append(errs, ErrEmptyAccount)
	}
	if err := r.NextDueDate.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid next due date: %w", err))
	}
	if r.ExpectedAmount.IsZero() {
		errs = append(errs, ErrInvalidAmount)
	}
	if !r.Frequency.IsValid() {
		errs = append(errs, &InvalidRuleError{RuleID: r.ID, Frequency: r.Frequency})
	}
	return errors.Join(errs...)
}

// BillAmount is the signed amount a projected occurrence of the rule carries.
// Rules are bills, so the stored magnitude is always projected as a debit.
func (r RecurringRule) BillAmount() decimal.Decimal {
	return r.ExpectedAmount.Abs().Neg()
}
