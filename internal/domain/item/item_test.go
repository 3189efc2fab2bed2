package item

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rentkart/internal/domain/failure"
)

func TestPriceUnit_Duration(t *testing.T) {
	tests := []struct {
		unit PriceUnit
		want time.Duration
	}{
		{PerHour, time.Hour},
		{PerDay, 24 * time.Hour},
		{PerWeek, 168 * time.Hour},
		{PerMonth, 720 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			got, err := tt.unit.Duration()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PriceUnit("fortnight").Duration()
	require.ErrorIs(t, err, failure.ErrInvalidArgument)
}

func TestItem_StatusFor(t *testing.T) {
	it := &Item{Status: StatusAvailable}
	assert.Equal(t, StatusRented, it.StatusFor(0))
	assert.Equal(t, StatusAvailable, it.StatusFor(2))

	it.Status = StatusMaintenance
	assert.Equal(t, StatusMaintenance, it.StatusFor(3))
	assert.False(t, it.Rentable())
}

func TestItem_Rentable(t *testing.T) {
	assert.True(t, (&Item{Status: StatusRented}).Rentable())
	assert.False(t, (&Item{Status: StatusAvailable, Deleted: true}).Rentable())
	assert.False(t, (&Item{Status: StatusUnavailable}).Rentable())
}
