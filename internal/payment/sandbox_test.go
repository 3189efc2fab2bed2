package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandbox_ChargeIsIdempotent(t *testing.T) {
	s := NewSandbox()
	ctx := context.Background()

	id1, err := s.Charge(ctx, "u1", decimal.NewFromInt(100), "k1")
	require.NoError(t, err)
	id2, err := s.Charge(ctx, "u1", decimal.NewFromInt(100), "k1")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.True(t, decimal.NewFromInt(100).Equal(s.Captured(id1)))
}

func TestSandbox_Refund(t *testing.T) {
	s := NewSandbox()
	ctx := context.Background()

	id, err := s.Charge(ctx, "u1", decimal.NewFromInt(100), "k1")
	require.NoError(t, err)

	require.NoError(t, s.Refund(ctx, id, decimal.NewFromInt(60), "r1"))
	require.NoError(t, s.Refund(ctx, id, decimal.NewFromInt(60), "r1"))
	assert.True(t, decimal.NewFromInt(40).Equal(s.Captured(id)))

	require.ErrorIs(t, s.Refund(ctx, id, decimal.NewFromInt(60), "r2"), ErrRefundExceedsCharge)
	require.ErrorIs(t, s.Refund(ctx, "ch_missing", decimal.NewFromInt(1), "r3"), ErrUnknownCharge)
}

func TestSandbox_FailNext(t *testing.T) {
	s := NewSandbox()
	s.FailNext(1)

	_, err := s.Charge(context.Background(), "u1", decimal.NewFromInt(1), "k1")
	require.ErrorIs(t, err, ErrDeclined)

	_, err = s.Charge(context.Background(), "u1", decimal.NewFromInt(1), "k1")
	require.NoError(t, err)
}
