package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind prefixes inside a sort key. Null sorts before every other kind.
const (
	keyNull byte = iota + 1
	keyBool
	keyInt
	keyDecimal
	keyFloat
	keyText
)

// SortOrder returns the column positions a sort key is built from: every
// exact column in schema order, then every float or decimal column in
// schema order. Approximate columns go last so rows that differ only in
// float noise still agree on all preceding key parts.
func SortOrder(s Schema) []int {
	order := make([]int, 0, len(s))
	for i, c := range s {
		if !c.Kind.Approximate() {
			order = append(order, i)
		}
	}
	for i, c := range s {
		if c.Kind.Approximate() {
			order = append(order, i)
		}
	}
	return order
}

// SortKey builds a byte-comparable key for r: the values at order encoded
// with AppendSortKey, followed by the row digest. bytes.Compare on two keys
// gives a total order that depends only on row contents, so two datasets
// holding the same multiset of rows sort identically.
func SortKey(r Row, order []int) ([]byte, error) {
	key := make([]byte, 0, 16*len(order)+sha256Size)
	for _, i := range order {
		key = AppendSortKey(key, r[i])
	}
	digest, err := RowDigest(r)
	if err != nil {
		return nil, fmt.Errorf("sort key: %w", err)
	}
	return append(key, digest...), nil
}

const sha256Size = 32

// AppendSortKey appends an order-preserving encoding of v to dst.
//
// Integers flip the sign bit, floats use the usual IEEE total-order trick
// with -0 folded into +0 and every NaN sorting last, text escapes 0x00 and
// ends with 0x00 0x01. Decimals encode their float64 approximation followed
// by the exact text, which keeps the key deterministic for values that
// round to the same float.
func AppendSortKey(dst []byte, v Value) []byte {
	switch val := v.(type) {
	case Null:
		return append(dst, keyNull)
	case Bool:
		if val {
			return append(dst, keyBool, 1)
		}
		return append(dst, keyBool, 0)
	case Int:
		dst = append(dst, keyInt)
		return binary.BigEndian.AppendUint64(dst, uint64(val)^(1<<63))
	case Float:
		dst = append(dst, keyFloat)
		return appendFloatKey(dst, float64(val))
	case Decimal:
		dst = append(dst, keyDecimal)
		dst = appendFloatKey(dst, val.InexactFloat64())
		return appendTextKey(dst, val.Decimal.String())
	case Text:
		dst = append(dst, keyText)
		return appendTextKey(dst, string(val))
	default:
		return dst
	}
}

func appendFloatKey(dst []byte, f float64) []byte {
	var bits uint64
	switch {
	case math.IsNaN(f):
		bits = math.MaxUint64
	case f == 0:
		bits = 1 << 63
	default:
		bits = math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
	}
	return binary.BigEndian.AppendUint64(dst, bits)
}

func appendTextKey(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, s[i])
	}
	return append(dst, 0x00, 0x01)
}
