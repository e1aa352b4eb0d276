package vatrates

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Table is an ordered set of statutory VAT rates, expressed in percent.
// Rates must be ascending so that snapping ties resolve toward the lower rate.
type Table struct {
	rates []decimal.Decimal
}

// New builds a Table from percent values. The list must be non-empty,
// non-negative and strictly ascending.
func New(rates ...decimal.Decimal) (Table, error) {
	if len(rates) == 0 {
		return Table{}, fmt.Errorf("vat rate table must not be empty")
	}
	for i, r := range rates {
		if r.IsNegative() {
			return Table{}, fmt.Errorf("vat rate %s must not be negative", r)
		}
		if i > 0 && r.Cmp(rates[i-1]) <= 0 {
			return Table{}, fmt.Errorf("vat rates must be strictly ascending, got %s after %s", r, rates[i-1])
		}
	}
	copied := make([]decimal.Decimal, len(rates))
	copy(copied, rates)
	return Table{rates: copied}, nil
}

// Turkish returns the statutory Turkish VAT brackets.
func Turkish() Table {
	rates := make([]decimal.Decimal, 0, 6)
	for _, p := range []int64{0, 1, 8, 10, 18, 20} {
		rates = append(rates, decimal.NewFromInt(p))
	}
	return Table{rates: rates}
}

// Rates returns a copy of the table's percent values.
func (t Table) Rates() []decimal.Decimal {
	copied := make([]decimal.Decimal, len(t.rates))
	copy(copied, t.rates)
	return copied
}

// Infer snaps an implied VAT rate, derived from a VAT-inclusive total and its
// VAT portion, to the nearest table member. Ties resolve to the lower rate.
//
// This is a display aid for records that arrive without an explicit rate; it
// must never feed the netting arithmetic itself. Degenerate inputs (zero
// amounts, or a non-positive base) snap to the lowest rate in the table.
func (t Table) Infer(totalAmount, totalVatAmount decimal.Decimal) decimal.Decimal {
	lowest := t.rates[0]
	if totalAmount.IsZero() || totalVatAmount.IsZero() {
		return lowest
	}

	baseAmount := totalAmount.Sub(totalVatAmount)
	if baseAmount.Sign() <= 0 {
		return lowest
	}

	raw := totalVatAmount.Div(baseAmount).Mul(decimal.NewFromInt(100))

	closest := lowest
	minDiff := raw.Sub(closest).Abs()
	for _, rate := range t.rates[1:] {
		diff := raw.Sub(rate).Abs()
		if diff.Cmp(minDiff) < 0 {
			minDiff = diff
			closest = rate
		}
	}
	return closest
}
