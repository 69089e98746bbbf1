// Package hbd formats and parses HBD amounts. Amounts are computed in
// float64 and rendered as fixed-decimal strings: four places for per-proof
// rewards, three for payout line items. Rendering rounds to nearest with
// ties to even, which is what strconv gives for the exact binary value.
package hbd

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BaseReward is the HBD credited for one successful proof before the
// rarity multiplier is applied.
const BaseReward = 0.001

// Format3 renders an amount with three decimal places, the payout
// line-item precision.
func Format3(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Format4 renders an amount with four decimal places, the reward
// precision.
func Format4(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Amount4 renders a reward with its currency suffix, e.g. "0.0003 HBD".
// A zero in the fourth place is dropped, so a full base reward reads
// "0.001 HBD".
func Amount4(v float64) string {
	return strings.TrimSuffix(Format4(v), "0") + " HBD"
}

// Parse reads a decimal HBD string back into a float64.
func Parse(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid HBD amount %q", s)
	}
	return v, nil
}

// Add3 adds a three-decimal amount string onto a running float total,
// returning the new total. Malformed inputs contribute nothing.
func Add3(total float64, s string) float64 {
	v, err := Parse(s)
	if err != nil {
		return total
	}
	return total + v
}
