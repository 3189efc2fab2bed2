package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/dispute"
	"github.com/xenking/rentkart/internal/domain/order"
)

func writeDispute(w http.ResponseWriter, status int, d *dispute.Dispute) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeDispute(e, d) })
}

// noteBody decodes {"note": …}.
func noteBody(r *http.Request) (string, error) {
	var note string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "note" {
			var err error
			note, err = d.Str()
			return err
		}
		return d.Skip()
	})
	return note, err
}

// OpenDispute files a dispute by the caller against the other party.
func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
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

	d, err := h.core.Disputes.Open(r.Context(), r.PathValue("id"), who, reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDispute(w, http.StatusCreated, d)
}

// GetDispute returns a dispute.
func (h *Handler) GetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := h.core.Disputes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDispute(w, http.StatusOK, d)
}

// The moderation endpoints below are expected to be restricted to
// moderators by the gateway.

// ReviewDispute marks a dispute as reviewed.
func (h *Handler) ReviewDispute(w http.ResponseWriter, r *http.Request) {
	note, err := noteBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.core.Disputes.Review(r.Context(), r.PathValue("id"), note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDispute(w, http.StatusOK, d)
}

// ResolveDispute settles a dispute. Repeating the call returns the stored
// resolution.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var (
		decision order.Decision
		refund   = decimal.Zero
		note     string
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "decision":
			var v string
			v, err = d.Str()
			decision = order.Decision(v)
		case "refund_amount":
			refund, err = decodeDecimal(d)
		case "note":
			note, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.core.Disputes.Resolve(r.Context(), r.PathValue("id"), decision, refund, note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDispute(w, http.StatusOK, d)
}

// RejectDispute dismisses a dispute and restores the order.
func (h *Handler) RejectDispute(w http.ResponseWriter, r *http.Request) {
	note, err := noteBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.core.Disputes.Reject(r.Context(), r.PathValue("id"), note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDispute(w, http.StatusOK, d)
}
