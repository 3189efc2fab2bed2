package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/rentkart/internal/domain/contract"
)

// GetContract returns the order's contract.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	o, _, err := h.party(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.core.Contracts.Get(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeContract(e, c) })
}

// SignContract signs the contract in the given role. The role defaults to
// the caller's side of the order.
func (h *Handler) SignContract(w http.ResponseWriter, r *http.Request) {
	o, who, err := h.party(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	role := contract.RoleRenter
	if who == o.OwnerID {
		role = contract.RoleOwner
	}
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "role" {
			v, err := d.Str()
			role = contract.Role(v)
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.core.Contracts.Sign(r.Context(), o.ID, role, who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeContract(e, c) })
}
