package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundMode selects how ties are broken when rounding.
type RoundMode string

const (
	// RoundHalfUp rounds ties away from zero.
	RoundHalfUp RoundMode = "up"
	// RoundHalfDown rounds ties towards zero.
	RoundHalfDown RoundMode = "down"
)

var half = decimal.NewFromFloat(0.5)

// ParseRoundMode maps "up" to RoundHalfUp and anything else to RoundHalfDown.
func ParseRoundMode(value string) RoundMode {
	if strings.EqualFold(strings.TrimSpace(value), string(RoundHalfUp)) {
		return RoundHalfUp
	}
	return RoundHalfDown
}

// Formatter rounds computed amounts according to the cart configuration.
type Formatter struct {
	Decimals      int
	RoundMode     RoundMode
	FormatNumbers bool
}

// Format rounds value when formatted is requested or FormatNumbers is set.
// Zero always yields zero.
func (f Formatter) Format(value float64, formatted bool) float64 {
	if value == 0 {
		return 0
	}
	if formatted || f.FormatNumbers {
		return f.Round(value)
	}
	return value
}

// Round rounds value to the configured number of decimals.
func (f Formatter) Round(value float64) float64 {
	places := int32(f.Decimals)
	if places < 0 {
		places = 0
	}
	d := decimal.NewFromFloat(value)
	var rounded decimal.Decimal
	if f.RoundMode == RoundHalfUp {
		rounded = d.Round(places)
	} else {
		shifted := d.Shift(places)
		truncated := shifted.Truncate(0)
		if shifted.Sub(truncated).Abs().Equal(half) {
			rounded = truncated.Shift(-places)
		} else {
			rounded = d.Round(places)
		}
	}
	out, _ := rounded.Float64()
	return out
}
