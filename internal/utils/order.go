package utils

import "math"

// QuantityForBudget returns the largest whole number of shares purchasable
// with the given fraction of cash at price. Returns zero when the inputs
// cannot fund a single share.
func QuantityForBudget(cash, fraction, price float64) float64 {
	if cash <= 0 || fraction <= 0 || price <= 0 {
		return 0
	}

	qty := math.Floor(cash * fraction / price)
	if qty < 0 {
		return 0
	}

	return qty
}

// MaxQuantity returns the largest whole number of shares purchasable with
// all of cash at price.
func MaxQuantity(cash, price float64) float64 {
	return QuantityForBudget(cash, 1, price)
}
