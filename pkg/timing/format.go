package timing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Placeholder is rendered for every value that is unknown
	Placeholder = "—"
	LeaderLabel = "Leader"
)

var sixty = decimal.NewFromInt(60)

// known returns the value as decimal if it is usable for display and deltas.
// nil, NaN, infinite and non-positive durations count as unknown.
func known(v *float64) (decimal.Decimal, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*v), true
}

// FormatLapSeconds renders a lap duration as M:SS.mmm
func FormatLapSeconds(v *float64) string {
	d, ok := known(v)
	if !ok {
		return Placeholder
	}
	d = d.Round(3)
	minutes := d.Div(sixty).Floor()
	seconds := d.Sub(minutes.Mul(sixty)).StringFixed(3)
	if len(seconds) < 6 {
		seconds = strings.Repeat("0", 6-len(seconds)) + seconds
	}
	return fmt.Sprintf("%s:%s", minutes.String(), seconds)
}

// FormatSector renders a sector duration with three decimals
func FormatSector(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return Placeholder
	}
	return decimal.NewFromFloat(*v).StringFixed(3)
}

// FormatDelta renders a - b as signed seconds (+1.500s, -0.250s, 0.000s).
// The placeholder is returned if either side is unknown.
func FormatDelta(a, b *float64) string {
	da, okA := known(a)
	db, okB := known(b)
	if !okA || !okB {
		return Placeholder
	}
	delta := da.Sub(db).Round(3)
	if delta.IsPositive() {
		return "+" + delta.StringFixed(3) + "s"
	}
	return delta.StringFixed(3) + "s"
}
