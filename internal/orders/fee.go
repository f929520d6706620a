package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeMode decides who carries the platform fee.
type FeeMode string

const (
	// FeeAbsorbed: buyer pays the subtotal, supplier nets total - fee.
	FeeAbsorbed FeeMode = "absorbed"
	// FeeBuyerPays: fee is added on top of the subtotal.
	FeeBuyerPays FeeMode = "buyer"
)

const DefaultFeeRate = "0.02"

type FeeSchedule struct {
	Rate decimal.Decimal
	Mode FeeMode
}

func DefaultFees() FeeSchedule {
	return FeeSchedule{Rate: decimal.RequireFromString(DefaultFeeRate), Mode: FeeAbsorbed}
}

func NewFeeSchedule(rate, mode string) (FeeSchedule, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("platform fee rate %q: %w", rate, err)
	}
	if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return FeeSchedule{}, fmt.Errorf("platform fee rate %s out of range [0,1)", r)
	}
	m := FeeMode(mode)
	if m != FeeAbsorbed && m != FeeBuyerPays {
		return FeeSchedule{}, fmt.Errorf("unknown platform fee mode %q", mode)
	}
	return FeeSchedule{Rate: r, Mode: m}, nil
}

// Fee rounds subtotal*rate to the nearest cent, halves away from zero.
func (f FeeSchedule) Fee(subtotalCents int64) int64 {
	return decimal.NewFromInt(subtotalCents).Mul(f.Rate).Round(0).IntPart()
}

func (f FeeSchedule) Total(subtotalCents, feeCents int64) int64 {
	if f.Mode == FeeBuyerPays {
		return subtotalCents + feeCents
	}
	return subtotalCents
}

// SupplierNet is what the supplier keeps; it equals the subtotal in buyer-pays mode.
func SupplierNet(totalCents, feeCents int64) int64 { return totalCents - feeCents }

// FormatCents renders cents as a fixed two-decimal amount, e.g. 1999 -> "19.99".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
