package domain

import (
	"fmt"
	"math"
)

// Volume unit thresholds for display formatting.
const (
	unitYi   = 100_000_000 // 亿
	unitWan  = 10_000      // 万
	unitQian = 1_000       // 千
)

// ChangeRate returns ((close-open)/open)*100 rounded to 2 decimals, or 0 when
// open is 0.
func ChangeRate(open, close float64) float64 {
	if open == 0 {
		return 0
	}
	return Round2(((close - open) / open) * 100)
}

// Round2 rounds to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Volume24hUSDT estimates the 24h turnover in USDT from a ticker:
// ((open24h + last) / 2) * volCcy24h. Returns 0 when either open24h or
// volCcy24h is 0.
func Volume24hUSDT(open24h, last, volCcy24h float64) float64 {
	if open24h == 0 || volCcy24h == 0 {
		return 0
	}
	return (open24h + last) / 2 * volCcy24h
}

// FormatVolume renders a volume with Chinese magnitude units:
// >=1e8 "X.XX亿", >=1e4 "X.XX万", >=1e3 "X.X千", otherwise an integer string.
func FormatVolume(v float64) string {
	switch {
	case v == 0:
		return "0"
	case v >= unitYi:
		return fmt.Sprintf("%.2f亿", v/unitYi)
	case v >= unitWan:
		return fmt.Sprintf("%.2f万", v/unitWan)
	case v >= unitQian:
		return fmt.Sprintf("%.1f千", v/unitQian)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
