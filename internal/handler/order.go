package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/order"
)

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CreateOrder books units of an item for the caller.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	renter, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := order.CreateRequest{RenterID: renter, UnitCount: 1}
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "item_id":
			req.ItemID, err = d.Str()
		case "unit_count":
			req.UnitCount, err = d.Int()
		case "start_at":
			req.StartAt, err = decodeTime(d)
		case "end_at":
			req.EndAt, err = decodeTime(d)
		case "discount_code":
			req.DiscountCode, err = d.Str()
		case "continue_without_discount":
			req.ContinueWithoutDiscount, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.core.Orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusCreated, o)
}

// GetOrder returns an order to one of its parties.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, _, err := h.party(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// ConfirmPayment charges the renter. Without an amount the order total is
// charged.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	o, who, err := h.party(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if who != o.RenterID {
		writeError(w, r, errors.Wrap(failure.ErrForbidden, "only the renter pays"))
		return
	}

	amount := o.TotalAmount
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "amount" {
			var err error
			amount, err = decodeDecimal(d)
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err = h.core.Orders.ConfirmPayment(r.Context(), o.ID, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// StartOrder hands the item over.
func (h *Handler) StartOrder(w http.ResponseWriter, r *http.Request) {
	o, _, err := h.party(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if o, err = h.core.Orders.Start(r.Context(), o.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// CompleteOrder records the return. Only the owner files the condition
// report.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	o, who, err := h.party(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if who != o.OwnerID {
		writeError(w, r, errors.Wrap(failure.ErrForbidden, "only the owner completes the rental"))
		return
	}

	report := order.ConditionReport{Condition: "good", DamageFee: decimal.Zero}
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "condition":
			report.Condition, err = d.Str()
		case "notes":
			report.Notes, err = d.Str()
		case "damage_fee":
			report.DamageFee, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	report.ReportedAt = time.Now()

	if o, err = h.core.Orders.Complete(r.Context(), o.ID, report); err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// CancelOrder cancels on behalf of the caller, who must be a party.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var reason string
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "reason" {
			var err error
			reason, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.core.Orders.Cancel(r.Context(), r.PathValue("id"), reason, who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// AddReview stores the caller's rating of a completed rental.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	review := order.Review{AuthorID: who}
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "rating":
			review.Rating, err = d.Int()
		case "comment":
			review.Comment, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.core.Orders.AddReview(r.Context(), r.PathValue("id"), review)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusCreated, o)
}

// ValidateDiscount previews a discount without redeeming it.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := discount.Request{UserID: who}
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "item_id":
			req.ItemID, err = d.Str()
		case "base_amount":
			req.BaseAmount, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.ItemID != "" {
		it, err := h.core.Items.Get(r.Context(), req.ItemID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.OwnerID = it.OwnerID
	}

	res, err := h.core.Discounts.Validate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDiscount(e, res) })
}
