package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/rentkart/internal/domain/failure"
)

// ErrUnauthenticated is returned when a request lacks the actor header.
var ErrUnauthenticated = errors.New("missing actor")

var statusByKind = []struct {
	kind   error
	status int
}{
	{ErrUnauthenticated, http.StatusUnauthorized},
	{failure.ErrNotFound, http.StatusNotFound},
	{failure.ErrForbidden, http.StatusForbidden},
	{failure.ErrInvalidArgument, http.StatusBadRequest},
	{failure.ErrInvalidWindow, http.StatusUnprocessableEntity},
	{failure.ErrDiscountInvalid, http.StatusUnprocessableEntity},
	{failure.ErrCapacityExceeded, http.StatusConflict},
	{failure.ErrInvalidStateTransition, http.StatusConflict},
	{failure.ErrContractNotSigned, http.StatusConflict},
	{failure.ErrDuplicateOperation, http.StatusConflict},
	{failure.ErrProviderFailure, http.StatusBadGateway},
	{failure.ErrConcurrencyConflict, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusServiceUnavailable},
}

// kindName is the machine readable error kind in responses.
var kindName = map[error]string{
	ErrUnauthenticated:                "unauthenticated",
	failure.ErrNotFound:               "not_found",
	failure.ErrForbidden:              "forbidden",
	failure.ErrInvalidArgument:        "invalid_argument",
	failure.ErrInvalidWindow:          "invalid_window",
	failure.ErrDiscountInvalid:        "discount_invalid",
	failure.ErrCapacityExceeded:       "capacity_exceeded",
	failure.ErrInvalidStateTransition: "invalid_state_transition",
	failure.ErrContractNotSigned:      "contract_not_signed",
	failure.ErrDuplicateOperation:     "duplicate_operation",
	failure.ErrProviderFailure:        "provider_failure",
	failure.ErrConcurrencyConflict:    "concurrency_conflict",
	context.DeadlineExceeded:          "timeout",
}

// writeError maps a domain error to its status code. Unclassified errors
// are logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			status, kind = m.status, kindName[m.kind]
			break
		}
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			num(e, "code", status)
			str(e, "kind", kind)
			str(e, "message", msg)
		})
	})
}
