package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"-4.50", "-4.5", true},
		{"+4.50", "4.5", true},
		{"1,23", "1.23", true},
		{"1,234.56", "1234.56", true},
		{"(1,234.5)", "-1234.5", true},
		{"$-12.00", "-12", true},
		{"-$12.00", "-12", true},
		{"€12,34", "12.34", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"1,234", "1234", true},
		{"$1,234", "1234", true},
		{"-2,500", "-2500", true},
		{"1,234,567", "1234567", true},
		{"1,234,567.89", "1234567.89", true},
		{"1,234.00", "1234", true},
		{"1.234,56", "1234.56", true},
		{"12,5", "12.5", true},
		{"1,2345", "", false},
		{"12,34,567", "", false},
		{"1234,567.00", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"--1", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("-4.5")); got != "-4.50" {
		t.Fatalf("expected -4.50, got %s", got)
	}
}
