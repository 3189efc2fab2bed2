package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
)

var hundred = decimal.NewFromInt(100)

// Quote is the undiscounted price of a rental.
type Quote struct {
	BilledUnits int
	Subtotal    decimal.Decimal
	Deposit     decimal.Decimal
}

// Price quotes unitCount units of snap for [start, end). The duration is
// rounded up to whole price units.
func Price(snap ItemSnapshot, unitCount int, start, end time.Time) (Quote, error) {
	if !start.Before(end) {
		return Quote{}, errors.Wrapf(failure.ErrInvalidWindow, "start %s not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if unitCount < 1 {
		return Quote{}, errors.Wrap(failure.ErrInvalidArgument, "unit count must be at least 1")
	}

	unit, err := snap.PriceUnit.Duration()
	if err != nil {
		return Quote{}, err
	}

	span := end.Sub(start)
	billed := int(span / unit)
	if span%unit != 0 {
		billed++
	}

	count := decimal.NewFromInt(int64(unitCount))
	return Quote{
		BilledUnits: billed,
		Subtotal:    snap.BasePrice.Mul(decimal.NewFromInt(int64(billed))).Mul(count).Round(2),
		Deposit:     snap.DepositPerUnit.Mul(count).Round(2),
	}, nil
}

// percentOf returns pct percent of amount rounded to cents.
func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(2)
}

// snapshot captures the fields of it an order keeps for its lifetime.
func snapshot(it *item.Item) ItemSnapshot {
	return ItemSnapshot{
		Title:          it.Title,
		Images:         append([]string(nil), it.Images...),
		BasePrice:      it.BasePrice,
		PriceUnit:      it.PriceUnit,
		DepositPerUnit: it.DepositPerUnit,
	}
}
