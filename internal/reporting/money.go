package reporting

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const defaultCurrencyScale int32 = 2

var (
	hundred          = decimal.NewFromInt(100)
	percentTolerance = decimal.RequireFromString("0.1")
	percentStep      = decimal.New(1, -2)
)

// Currency carries the minor-unit scale used when presenting monetary values.
type Currency struct {
	Code  string `json:"code"`
	Scale int32  `json:"scale"`
}

// ResolveCurrency looks up the ISO 4217 minor unit for code. Unknown or empty
// codes keep two decimal places.
func ResolveCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{Code: code, Scale: defaultCurrencyScale}
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{Code: unit.String(), Scale: int32(scale)}
}

// Round applies the currency minor unit.
func (c Currency) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.Scale)
}

// percentOf returns part / whole * 100 unrounded, or zero when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}

func roundPercent(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// apportionPercent returns each part's share of whole in 0.01 steps. Shares
// are truncated, then the missing steps go to the largest remainders (ties to
// the earlier part) so the shares sum to exactly 100. All shares are zero when
// whole is zero.
func apportionPercent(parts []decimal.Decimal, whole decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(parts))
	if whole.IsZero() {
		for i := range shares {
			shares[i] = decimal.Zero
		}
		return shares
	}
	remainders := make([]decimal.Decimal, len(parts))
	allocated := decimal.Zero
	for i, p := range parts {
		exact := percentOf(p, whole)
		shares[i] = exact.Truncate(2)
		remainders[i] = exact.Sub(shares[i])
		allocated = allocated.Add(shares[i])
	}
	steps := hundred.Sub(allocated).Div(percentStep).Round(0).IntPart()
	order := make([]int, len(parts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for k := 0; k < len(order) && steps > 0; k++ {
		shares[order[k]] = shares[order[k]].Add(percentStep)
		steps--
	}
	for k := len(order) - 1; k >= 0 && steps < 0; k-- {
		shares[order[k]] = shares[order[k]].Sub(percentStep)
		steps++
	}
	return shares
}

func clampPercent(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Efficiency returns runtime / (runtime + downtime) * 100 clamped to [0, 100].
// When both are zero the efficiency is zero.
func Efficiency(runtime, downtime decimal.Decimal) decimal.Decimal {
	total := runtime.Add(downtime)
	if !total.IsPositive() {
		return decimal.Zero
	}
	return clampPercent(percentOf(runtime, total))
}
