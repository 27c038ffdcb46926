// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed monetary amounts from the
// loosely formatted strings found in bank exports.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CentPlaces is the precision amounts are held at.
const CentPlaces = 2

// ParseAmount converts a bank-export amount string to an exact decimal.
//
// It accepts an optional sign, a leading currency symbol, accounting-style
// parentheses for negatives and either a dot or a comma as decimal separator.
// When both separators appear the last one is the decimal separator. A lone
// comma followed by exactly three digits, or repeated commas, group thousands.
// Values are rounded half away from zero to cents.
//
// Examples:
//
//	ParseAmount("-4.50")     -> -4.50
//	ParseAmount("(1,234.5)") -> -1234.50
//	ParseAmount("€12,34")    -> 12.34
//	ParseAmount("1,234")     -> 1234.00
//	ParseAmount("1.234,56")  -> 1234.56
//	ParseAmount("12.345")    -> 12.35
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if trimmed := strings.TrimLeft(s, "$€£ "); trimmed != s {
		s = trimmed
		// A sign may follow the currency symbol, e.g. "$-4.50".
		if strings.HasPrefix(s, "-") {
			negative = !negative
			s = s[1:]
		}
	}

	s, ok := normalizeSeparators(s)
	if !ok || s == "" || strings.ContainsAny(s, "+- ") {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d.Round(CentPlaces), nil
}

// normalizeSeparators rewrites s so that "." is the only separator left and
// marks the decimal point. It reports false for ambiguous groupings.
func normalizeSeparators(s string) (string, bool) {
	lastComma := strings.LastIndex(s, ",")
	if lastComma < 0 {
		return s, true
	}
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastDot > lastComma:
		// 1,234.56
		intPart, frac := s[:lastDot], s[lastDot:]
		if !thousandGroups(intPart, ",") {
			return "", false
		}
		return strings.ReplaceAll(intPart, ",", "") + frac, true
	case lastDot >= 0:
		// 1.234,56
		intPart, frac := s[:lastComma], s[lastComma+1:]
		if !thousandGroups(intPart, ".") {
			return "", false
		}
		return strings.ReplaceAll(intPart, ".", "") + "." + frac, true
	}

	if strings.Count(s, ",") > 1 {
		if !thousandGroups(s, ",") {
			return "", false
		}
		return strings.ReplaceAll(s, ",", ""), true
	}
	switch len(s) - lastComma - 1 {
	case 1, 2:
		return s[:lastComma] + "." + s[lastComma+1:], true
	case 3:
		return s[:lastComma] + s[lastComma+1:], true
	default:
		return "", false
	}
}

// thousandGroups reports whether s is digit groups of three joined by sep,
// with a leading group of one to three digits. s without sep always passes.
func thousandGroups(s, sep string) bool {
	parts := strings.Split(s, sep)
	if len(parts) == 1 {
		return true
	}
	for i, p := range parts {
		if (i == 0 && (len(p) == 0 || len(p) > 3)) || (i > 0 && len(p) != 3) {
			return false
		}
	}
	return true
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(CentPlaces)
}
