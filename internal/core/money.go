// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing rupiah amounts and meter readings
// typed by operators or stored in the spreadsheet, and for formatting them back.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidNumber = errors.New("invalid number")

// ParseAmount parses an operator-typed amount or reading.
//
// It accepts an optional "Rp" prefix, a trailing ",-", spaces, dot or comma
// thousands separators (50.000, 50,000) and a decimal comma (12,5). A single
// dot followed by exactly three digits groups thousands, as operators write
// rupiah; any other single dot is a decimal point. Negative values are
// rejected. An empty string is an error.
//
// Examples:
//
//	ParseAmount("50000")       -> 50000, nil
//	ParseAmount("Rp 50.000,-") -> 50000, nil
//	ParseAmount("Rp 50,000")   -> 50000, nil
//	ParseAmount("12.5")        -> 12.5, nil
//	ParseAmount("12,5")        -> 12.5, nil
//	ParseAmount("-1")          -> 0, ErrNegativeAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	d, ok := parseLoose(s, true)
	if !ok {
		return decimal.Zero, ErrInvalidNumber
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// ParseStoredNumber coerces a spreadsheet cell to a number, treating anything
// unparsable (including blanks) as zero. Cells arrive unformatted, so a lone
// dot is always a decimal point ("0.125" stays 0.125).
func ParseStoredNumber(s string) decimal.Decimal {
	d, ok := parseLoose(s, false)
	if !ok {
		return decimal.Zero
	}
	return d
}

func parseLoose(s string, typed bool) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.EqualFold(s[:2], "rp") {
		s = s[2:]
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, ",-") // "Rp 5.000,-"
	if s == "" {
		return decimal.Zero, false
	}
	if typed && dotGrouped(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d, true
	}
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// the separator that comes last is the decimal one
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		// 1.234.567 -> thousands dots
		s = strings.ReplaceAll(s, ".", "")
	case strings.Count(s, ",") == 1 && len(s)-strings.Index(s, ",") == 4:
		// 50,000 -> thousands comma
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		// 12,5 -> decimal comma
		s = strings.ReplaceAll(s, ",", ".")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// dotGrouped reports a comma-free number with a single dot followed by three
// digits and a non-zero integer part of at most three digits: 50.000 or 1.500,
// but not 0.125, 1234.567 or 12.5.
func dotGrouped(s string) bool {
	if strings.Contains(s, ",") || strings.Count(s, ".") != 1 {
		return false
	}
	intPart, frac, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if len(frac) != 3 || len(intPart) == 0 || len(intPart) > 3 || intPart[0] == '0' {
		return false
	}
	return allDigits(intPart) && allDigits(frac)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatRupiah renders an amount rounded to whole rupiah with comma grouping,
// e.g. "Rp 55,000" or "-Rp 5,000".
func FormatRupiah(d decimal.Decimal) string {
	s := groupThousands(d.Abs().Round(0).StringFixed(0))
	if d.Round(0).IsNegative() {
		return "-Rp " + s
	}
	return "Rp " + s
}

// FormatCubicMeters renders a meter reading or usage, e.g. "20 m³".
func FormatCubicMeters(d decimal.Decimal) string {
	s := groupThousands(d.Abs().Round(0).StringFixed(0))
	if d.Round(0).IsNegative() {
		s = "-" + s
	}
	return s + " m³"
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
