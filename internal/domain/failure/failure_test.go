package failure

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "conflict", err: ErrConcurrencyConflict, want: true},
		{name: "wrapped provider failure", err: errors.Wrap(ErrProviderFailure, "charge"), want: true},
		{name: "state machine", err: ErrInvalidStateTransition, want: false},
		{name: "discount", err: errors.Wrap(ErrDiscountInvalid, "expired"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
