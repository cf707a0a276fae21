// Package core provides money parsing and handling utilities.
//
// This file contains the amount normalizer that turns heterogeneous
// monetary input into exact two-decimal fixed-point values.
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// NormalizeAmount converts v to an exact Money value rounded to two decimal
// places, half-up (ties away from zero).
//
// Accepted inputs are decimal.Decimal, Money, the Go integer and float kinds,
// json.Number and strings. Strings may use either separator convention:
//
//	NormalizeAmount("23200.00")  -> 2320000 cents
//	NormalizeAmount("23.200,00") -> 2320000 cents
//	NormalizeAmount("12,345")    -> 1235 cents
//	NormalizeAmount(0.005)       -> 1 cent
func NormalizeAmount(v any) (Money, error) {
	d, err := toDecimal(v)
	if err != nil {
		return Money{}, err
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d half-up to cents. Values that do not fit in
// int64 cents are rejected with ErrInvalidAmount.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(moneyPlaces).Shift(moneyPlaces)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return Money{}, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Money{Cents: cents.IntPart()}, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case Money:
		return val.Decimal(), nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case json.Number:
		return parseDecimalString(val.String())
	case string:
		return parseDecimalString(val)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
}

// parseDecimalString disambiguates "." and "," before parsing. When both
// appear, "." is a thousands separator and "," the decimal point.
func parseDecimalString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -moneyPlaces)
}

// String renders m with exactly two decimals and a "." separator.
func (m Money) String() string {
	return m.Decimal().StringFixed(moneyPlaces)
}

// Euros returns the value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Times multiplies m by n, failing with ErrInvalidAmount on overflow.
func (m Money) Times(n int) (Money, error) {
	k := int64(n)
	p := m.Cents * k
	if k != 0 && (p/k != m.Cents || (k == -1 && m.Cents == math.MinInt64)) {
		return Money{}, fmt.Errorf("%w: %s times %d is out of range", ErrInvalidAmount, m, n)
	}
	return Money{Cents: p}, nil
}

// MarshalJSON encodes m as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or string and normalizes it.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return ErrInvalidAmount
	}
	v, err := NormalizeAmount(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
