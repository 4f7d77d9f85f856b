package domain

import "github.com/shopspring/decimal"

// ComputeTotal sums price * quantity over items. It holds no state and must be
// called again whenever the cart changes.
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Variant.Quantity))))
	}
	return total
}

// ToMinorUnits converts a decimal amount to integer minor currency units (cents),
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
