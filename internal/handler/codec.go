package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/contract"
	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/dispute"
	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
	"github.com/xenking/rentkart/internal/domain/ledger"
	"github.com/xenking/rentkart/internal/domain/order"
)

const maxBody = 1 << 20

// decodeBody reads a JSON object from r, calling field for every key.
// Unknown keys are handed to field too; it should Skip them.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return errors.Wrap(failure.ErrInvalidArgument, "read body")
	}
	if len(body) == 0 {
		return nil
	}
	err = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	})
	if err != nil {
		if errors.Is(err, failure.ErrInvalidArgument) {
			return err
		}
		return errors.Wrapf(failure.ErrInvalidArgument, "decode body: %s", err)
	}
	return nil
}

// decodeDecimal accepts both "12.50" and 12.5.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, errors.Wrap(failure.ErrInvalidArgument, "amount must be a string or number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(failure.ErrInvalidArgument, "invalid amount %q", raw)
	}
	return v, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(failure.ErrInvalidArgument, "invalid time %q", s)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		str(e, name, v)
	}
}

func num(e *jx.Encoder, name string, v int) {
	e.Field(name, func(e *jx.Encoder) { e.Int(v) })
}

func flag(e *jx.Encoder, name string, v bool) {
	e.Field(name, func(e *jx.Encoder) { e.Bool(v) })
}

// money encodes amounts as strings with two decimals to keep them exact.
func money(e *jx.Encoder, name string, v decimal.Decimal) {
	str(e, name, v.StringFixed(2))
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	if !t.IsZero() {
		str(e, name, t.UTC().Format(time.RFC3339))
	}
}

func encodeItem(e *jx.Encoder, it *item.Item) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", it.ID)
		str(e, "owner_id", it.OwnerID)
		str(e, "title", it.Title)
		e.Field("images", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, img := range it.Images {
					e.Str(img)
				}
			})
		})
		money(e, "base_price", it.BasePrice)
		str(e, "price_unit", string(it.PriceUnit))
		money(e, "deposit_per_unit", it.DepositPerUnit)
		num(e, "quantity", it.Quantity)
		num(e, "available_quantity", it.AvailableQuantity)
		str(e, "status", string(it.Status))
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", o.ID)
		str(e, "renter_id", o.RenterID)
		str(e, "owner_id", o.OwnerID)
		str(e, "item_id", o.ItemID)
		e.Field("item", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				str(e, "title", o.Snapshot.Title)
				money(e, "base_price", o.Snapshot.BasePrice)
				str(e, "price_unit", string(o.Snapshot.PriceUnit))
				money(e, "deposit_per_unit", o.Snapshot.DepositPerUnit)
			})
		})
		num(e, "unit_count", o.UnitCount)
		timestamp(e, "start_at", o.StartAt)
		timestamp(e, "end_at", o.EndAt)
		num(e, "billed_units", o.BilledUnits)
		money(e, "subtotal", o.Subtotal)
		optStr(e, "discount_code", o.DiscountCode)
		money(e, "discount_amount", o.DiscountAmount)
		money(e, "service_fee", o.ServiceFee)
		money(e, "deposit_amount", o.DepositAmount)
		money(e, "total_amount", o.TotalAmount)
		money(e, "amount_paid", o.AmountPaid)
		money(e, "amount_refunded", o.AmountRefunded)
		str(e, "payment_status", string(o.PaymentStatus))
		str(e, "status", string(o.Status))
		optStr(e, "disputed_from", string(o.DisputedFrom))
		optStr(e, "cancel_reason", o.CancelReason)
		optStr(e, "cancelled_by", o.CancelledBy)
		if c := o.Condition; c != nil {
			e.Field("condition", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					str(e, "condition", c.Condition)
					optStr(e, "notes", c.Notes)
					money(e, "damage_fee", c.DamageFee)
					timestamp(e, "reported_at", c.ReportedAt)
				})
			})
		}
		if len(o.Reviews) > 0 {
			e.Field("reviews", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, r := range o.Reviews {
						e.Obj(func(e *jx.Encoder) {
							str(e, "author_id", r.AuthorID)
							num(e, "rating", r.Rating)
							optStr(e, "comment", r.Comment)
							timestamp(e, "created_at", r.CreatedAt)
						})
					}
				})
			})
		}
		num(e, "version", o.Version)
		timestamp(e, "created_at", o.CreatedAt)
		timestamp(e, "updated_at", o.UpdatedAt)
	})
}

func encodeContract(e *jx.Encoder, c *contract.Contract) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", c.ID)
		str(e, "order_id", c.OrderID)
		str(e, "owner_id", c.OwnerID)
		str(e, "renter_id", c.RenterID)
		str(e, "content", c.Content)
		flag(e, "signed_by_owner", c.SignedByOwner)
		flag(e, "signed_by_renter", c.SignedByRenter)
		e.Field("signatures", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range c.Signatures {
					e.Obj(func(e *jx.Encoder) {
						str(e, "role", string(s.Role))
						str(e, "signer_id", s.SignerID)
						timestamp(e, "signed_at", s.SignedAt)
					})
				}
			})
		})
		str(e, "status", string(c.Status))
	})
}

func encodeTransaction(e *jx.Encoder, t *ledger.Transaction) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", t.ID)
		e.Field("seq", func(e *jx.Encoder) { e.Int64(t.Seq) })
		str(e, "user_id", t.UserID)
		optStr(e, "order_id", t.OrderID)
		str(e, "type", string(t.Type))
		money(e, "amount", t.Amount)
		str(e, "status", string(t.Status))
		money(e, "balance_after", t.BalanceAfter)
		str(e, "idempotency_key", t.IdempotencyKey)
		optStr(e, "failure_reason", t.FailureReason)
		timestamp(e, "created_at", t.CreatedAt)
		timestamp(e, "settled_at", t.SettledAt)
	})
}

func encodeTransactions(e *jx.Encoder, list []ledger.Transaction) {
	e.Arr(func(e *jx.Encoder) {
		for i := range list {
			encodeTransaction(e, &list[i])
		}
	})
}

func encodeDispute(e *jx.Encoder, d *dispute.Dispute) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", d.ID)
		str(e, "order_id", d.OrderID)
		str(e, "reporter_id", d.ReporterID)
		str(e, "reported_id", d.ReportedID)
		str(e, "reason", d.Reason)
		str(e, "status", string(d.Status))
		optStr(e, "review_note", d.ReviewNote)
		if res := d.Resolution; res != nil {
			e.Field("resolution", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					str(e, "decision", string(res.Decision))
					money(e, "refund_amount", res.RefundAmount)
					optStr(e, "note", res.Note)
				})
			})
		}
		timestamp(e, "created_at", d.CreatedAt)
		timestamp(e, "closed_at", d.ClosedAt)
	})
}

func encodeDiscount(e *jx.Encoder, res *discount.Result) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "code", res.Discount.Code)
		str(e, "type", string(res.Discount.Type))
		money(e, "amount", res.Amount)
		optStr(e, "description", res.Discount.Description)
	})
}
