// Package value defines the scalar values found in query result rows and
// the rules for comparing them.
//
// Value is a sealed interface: only Null, Bool, Int, Decimal, Float and Text
// implement it, and every function in this package dispatches with an
// exhaustive type switch. There is no implicit coercion between kinds.
//
// Key rules:
//   - Float and Decimal values match within a relative tolerance (Compare)
//   - NaN matches NaN
//   - Every other kind matches only on exact equality
//   - Sort keys (SortKey) are byte-comparable and end with a row digest, so
//     sorting is a total order over row contents
//
// This package imports nothing internal; dataset and validate build on it.
package value
