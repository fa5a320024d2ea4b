package value

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultEpsilon is the relative tolerance applied to float and decimal
// values when no other value is configured.
const DefaultEpsilon = 0.00001

// Compare reports whether actual matches expected.
//
// Floats and decimals match when |a-b| <= epsilon * max(|a|,|b|); two NaN
// floats match each other. Every other kind requires exact equality, and
// values of different kinds never match (an Int 1 is not a Float 1.0).
func Compare(expected, actual Value, epsilon float64) bool {
	switch e := expected.(type) {
	case Float:
		a, ok := actual.(Float)
		return ok && floatsClose(float64(e), float64(a), epsilon)
	case Decimal:
		a, ok := actual.(Decimal)
		return ok && decimalsClose(e.Decimal, a.Decimal, epsilon)
	case Int:
		a, ok := actual.(Int)
		return ok && e == a
	case Text:
		a, ok := actual.(Text)
		return ok && e == a
	case Bool:
		a, ok := actual.(Bool)
		return ok && e == a
	case Null:
		_, ok := actual.(Null)
		return ok
	default:
		return false
	}
}

// RowEqual reports whether every positional pair of values matches under
// Compare. Rows of different arity are never equal.
func RowEqual(left, right Row, epsilon float64) bool {
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if !Compare(left[i], right[i], epsilon) {
			return false
		}
	}
	return true
}

func floatsClose(a, b, epsilon float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Abs(a-b) <= epsilon*math.Max(math.Abs(a), math.Abs(b))
}

func decimalsClose(a, b decimal.Decimal, epsilon float64) bool {
	if a.Equal(b) {
		return true
	}
	bound := decimal.Max(a.Abs(), b.Abs()).Mul(decimal.NewFromFloat(epsilon))
	return a.Sub(b).Abs().LessThanOrEqual(bound)
}
