// Package forecast expands recurring rules into projected ("ghost")
// transactions.
//
// Each frequency has its own Stepper that knows how to walk the calendar for
// that cadence. Steppers are looked up through a registry so new cadences can
// be added without touching the projection loop.
package forecast

import (
	"fmt"
	"sync"

	"financeos/internal/core"
)

// Stepper computes the occurrences of a recurring rule.
type Stepper interface {
	// Occurrence returns the n-th occurrence counted from start, where n == 0
	// is start itself. Computing from start instead of from the previous
	// occurrence keeps month-end anchors from drifting.
	Occurrence(start core.Date, n int) core.Date
}

// DailyStepper advances one calendar day per occurrence.
type DailyStepper struct{}

func (DailyStepper) Occurrence(start core.Date, n int) core.Date {
	return start.AddDays(n)
}

// WeeklyStepper advances seven calendar days per occurrence.
type WeeklyStepper struct{}

func (WeeklyStepper) Occurrence(start core.Date, n int) core.Date {
	return start.AddDays(7 * n)
}

// MonthlyStepper advances one calendar month, keeping start's day of month
// and clamping it to the last day of shorter months.
type MonthlyStepper struct{}

func (MonthlyStepper) Occurrence(start core.Date, n int) core.Date {
	return start.AddMonths(n, start.Day())
}

// AnnualStepper advances one calendar year. Feb 29 falls back to Feb 28 in
// common years.
type AnnualStepper struct{}

func (AnnualStepper) Occurrence(start core.Date, n int) core.Date {
	return start.AddMonths(12*n, start.Day())
}

var (
	steppersMu sync.RWMutex
	steppers   = map[core.Frequency]Stepper{
		core.Daily:   DailyStepper{},
		core.Weekly:  WeeklyStepper{},
		core.Monthly: MonthlyStepper{},
		core.Annual:  AnnualStepper{},
	}
)

// GetStepper returns the stepper registered for a frequency.
func GetStepper(freq core.Frequency) (Stepper, error) {
	steppersMu.RLock()
	defer steppersMu.RUnlock()

	s, ok := steppers[freq]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", freq)
	}
	return s, nil
}

// RegisterStepper adds or replaces the stepper for a frequency.
func RegisterStepper(freq core.Frequency, s Stepper) {
	steppersMu.Lock()
	defer steppersMu.Unlock()
	steppers[freq] = s
}

// Step returns the occurrence that follows date for the given frequency.
func Step(freq core.Frequency, date core.Date) (core.Date, error) {
	s, err := GetStepper(freq)
	if err != nil {
		return core.Date{}, err
	}
	return s.Occurrence(date, 1), nil
}
