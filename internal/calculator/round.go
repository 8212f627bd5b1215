package calculator

import "github.com/shopspring/decimal"

// Tolerance is the amount below which two monetary values are considered equal.
const Tolerance = 0.01

// Round2 rounds an amount to 2 decimals, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Sum adds amounts in decimal arithmetic so long payment lists do not drift.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}

func negligible(v float64) bool {
	return v > -Tolerance && v < Tolerance
}
