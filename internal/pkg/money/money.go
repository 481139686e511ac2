// Package money provides monetary rounding helpers backed by decimal math.
package money

import "github.com/shopspring/decimal"

// Round2 四舍五入到分（两位小数），用于对外展示与落库的金额字段。
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Round1 四舍五入到一位小数，用于百分比展示。
func Round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

// PctChange 返回 (next-cur)/cur*100；cur 为 0 时按约定返回 0，避免除零。
func PctChange(cur, next float64) float64 {
	if cur == 0 {
		return 0
	}
	c := decimal.NewFromFloat(cur)
	n := decimal.NewFromFloat(next)
	return n.Sub(c).Div(c).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
