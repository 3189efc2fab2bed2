package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		d    Discount
		base string
		want string
	}{
		{
			name: "percent capped at max discount",
			d: Discount{
				Type:              TypePercent,
				Value:             decimal.NewFromInt(10),
				MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(20000)),
			},
			base: "300000",
			want: "20000",
		},
		{
			name: "percent below cap",
			d: Discount{
				Type:              TypePercent,
				Value:             decimal.NewFromInt(10),
				MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(20000)),
			},
			base: "150000",
			want: "15000",
		},
		{
			name: "zero cap disables the discount",
			d: Discount{
				Type:              TypePercent,
				Value:             decimal.NewFromInt(10),
				MaxDiscountAmount: decimal.NewNullDecimal(decimal.Zero),
			},
			base: "150000",
			want: "0",
		},
		{
			name: "percent without cap",
			d:    Discount{Type: TypePercent, Value: decimal.RequireFromString("12.5")},
			base: "99.99",
			want: "12.5",
		},
		{
			name: "percent over one hundred never exceeds base",
			d:    Discount{Type: TypePercent, Value: decimal.NewFromInt(150)},
			base: "80",
			want: "80",
		},
		{
			name: "fixed below base",
			d:    Discount{Type: TypeFixed, Value: decimal.NewFromInt(50)},
			base: "200",
			want: "50",
		},
		{
			name: "fixed above base clamps",
			d:    Discount{Type: TypeFixed, Value: decimal.NewFromInt(500)},
			base: "200",
			want: "200",
		},
		{
			name: "zero base",
			d:    Discount{Type: TypeFixed, Value: decimal.NewFromInt(500)},
			base: "0",
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(&tt.d, decimal.RequireFromString(tt.base))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestApply_UnknownType(t *testing.T) {
	_, err := Apply(&Discount{Type: "bogo"}, decimal.NewFromInt(10))
	require.Error(t, err)
}
