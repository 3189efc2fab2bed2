package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Balance returns the caller's running balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.core.Ledger.BalanceOf(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			str(e, "user_id", who)
			money(e, "balance", balance)
		})
	})
}

// History returns the caller's ledger entries in posting order.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.core.Ledger.History(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTransactions(e, entries) })
}

// OrderLedger returns every entry posted for an order.
func (h *Handler) OrderLedger(w http.ResponseWriter, r *http.Request) {
	o, _, err := h.party(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.core.Ledger.OrderEntries(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTransactions(e, entries) })
}
