package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply computes the discount amount for base. The result is never negative
// and never exceeds base.
func Apply(d *Discount, base decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		base = decimal.Zero
	}

	var amount decimal.Decimal
	switch d.Type {
	case TypePercent:
		amount = base.Mul(d.Value).Div(hundred)
		if d.MaxDiscountAmount.Valid {
			amount = decimal.Min(amount, d.MaxDiscountAmount.Decimal)
		}
	case TypeFixed:
		amount = decimal.Min(d.Value, base)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", d.Type)
	}

	amount = decimal.Min(floorAtZero(amount), base)
	return amount.Round(2), nil
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
