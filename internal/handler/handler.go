// Package handler exposes the marketplace core over HTTP/JSON.
//
// The caller is identified by the X-Actor-ID header, which an upstream
// gateway sets after authentication. Amounts are exchanged as decimal
// strings.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/rentkart/internal/core"
	"github.com/xenking/rentkart/internal/domain/order"
	"github.com/xenking/rentkart/pkg/httpmiddleware"
)

// Handler serves the JSON API.
type Handler struct {
	core *core.Core
}

// New creates a Handler on top of the domain services.
func New(c *core.Core) *Handler {
	return &Handler{core: c}
}

// Register adds the API routes to mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/items", h.CreateItem)
	mux.HandleFunc("GET /api/items/{id}", h.GetItem)

	mux.HandleFunc("POST /api/discounts/validate", h.ValidateDiscount)

	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/payment", h.ConfirmPayment)
	mux.HandleFunc("POST /api/orders/{id}/start", h.StartOrder)
	mux.HandleFunc("POST /api/orders/{id}/complete", h.CompleteOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/reviews", h.AddReview)
	mux.HandleFunc("GET /api/orders/{id}/contract", h.GetContract)
	mux.HandleFunc("POST /api/orders/{id}/contract/sign", h.SignContract)
	mux.HandleFunc("GET /api/orders/{id}/ledger", h.OrderLedger)
	mux.HandleFunc("POST /api/orders/{id}/disputes", h.OpenDispute)

	mux.HandleFunc("GET /api/disputes/{id}", h.GetDispute)
	mux.HandleFunc("POST /api/disputes/{id}/review", h.ReviewDispute)
	mux.HandleFunc("POST /api/disputes/{id}/resolve", h.ResolveDispute)
	mux.HandleFunc("POST /api/disputes/{id}/reject", h.RejectDispute)

	mux.HandleFunc("GET /api/ledger/balance", h.Balance)
	mux.HandleFunc("GET /api/ledger/history", h.History)
}

// actor returns the caller or ErrUnauthenticated.
func actor(r *http.Request) (string, error) {
	id := httpmiddleware.ActorFromContext(r.Context())
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// party loads the order at {id} and checks that the caller is its renter or
// owner.
func (h *Handler) party(ctx context.Context, r *http.Request) (*order.Order, string, error) {
	who, err := actor(r)
	if err != nil {
		return nil, "", err
	}
	o, err := h.core.Orders.Get(ctx, r.PathValue("id"))
	if err != nil {
		return nil, "", err
	}
	if who != o.RenterID && who != o.OwnerID {
		return nil, "", order.ErrNotParty
	}
	return o, who, nil
}
