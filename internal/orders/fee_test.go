package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeIsTwoPercentRoundedToCent(t *testing.T) {
	f := DefaultFees()
	cases := map[int64]int64{
		2000: 40,
		5000: 100,
		0:    0,
		1:    0,
		25:   1, // 0.5 rounds away from zero
		1999: 40,
		1234: 25,
	}
	for subtotal, want := range cases {
		assert.Equal(t, want, f.Fee(subtotal), "subtotal %d", subtotal)
	}
}

func TestTotalAbsorbedKeepsSubtotal(t *testing.T) {
	f := DefaultFees()
	fee := f.Fee(2000)
	total := f.Total(2000, fee)
	assert.Equal(t, int64(2000), total)
	assert.Equal(t, int64(1960), SupplierNet(total, fee))
}

func TestTotalBuyerPaysAddsFee(t *testing.T) {
	f, err := NewFeeSchedule("0.02", "buyer")
	require.NoError(t, err)
	fee := f.Fee(2000)
	total := f.Total(2000, fee)
	assert.Equal(t, int64(2040), total)
	assert.Equal(t, int64(2000), SupplierNet(total, fee))
}

func TestNewFeeScheduleRejectsBadInput(t *testing.T) {
	_, err := NewFeeSchedule("abc", "absorbed")
	assert.Error(t, err)
	_, err = NewFeeSchedule("-0.01", "absorbed")
	assert.Error(t, err)
	_, err = NewFeeSchedule("1", "absorbed")
	assert.Error(t, err)
	_, err = NewFeeSchedule("0.02", "seller")
	assert.Error(t, err)
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "19.99", FormatCents(1999))
	assert.Equal(t, "0.40", FormatCents(40))
	assert.Equal(t, "50.00", FormatCents(5000))
}
