package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
)

// CreateItem lists a new item owned by the caller.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	owner, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	it := &item.Item{ID: uuid.New().String(), OwnerID: owner, Status: item.StatusAvailable}
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "title":
			it.Title, err = d.Str()
		case "images":
			err = d.Arr(func(d *jx.Decoder) error {
				img, err := d.Str()
				it.Images = append(it.Images, img)
				return err
			})
		case "base_price":
			it.BasePrice, err = decodeDecimal(d)
		case "price_unit":
			var unit string
			unit, err = d.Str()
			it.PriceUnit = item.PriceUnit(unit)
		case "deposit_per_unit":
			it.DepositPerUnit, err = decodeDecimal(d)
		case "quantity":
			it.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = validateItem(it)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	it.AvailableQuantity = it.Quantity
	it.CreatedAt = time.Now()
	it.UpdatedAt = it.CreatedAt
	if err := h.core.Items.Create(r.Context(), it); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeItem(e, it) })
}

func validateItem(it *item.Item) error {
	if it.Title == "" {
		return errors.Wrap(failure.ErrInvalidArgument, "title required")
	}
	if it.Quantity < 1 {
		return errors.Wrap(failure.ErrInvalidArgument, "quantity must be at least 1")
	}
	if !it.BasePrice.IsPositive() || it.DepositPerUnit.IsNegative() {
		return errors.Wrap(failure.ErrInvalidArgument, "base price must be positive and deposit non-negative")
	}
	if _, err := it.PriceUnit.Duration(); err != nil {
		return err
	}
	return nil
}

// GetItem returns an item with its current availability.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.core.Items.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, it) })
}
