package value

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies the scalar type carried by a Value or declared by a Column.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindFloat
	KindText
)

var kindNames = [...]string{
	KindNull:    "null",
	KindBool:    "bool",
	KindInt:     "int",
	KindDecimal: "decimal",
	KindFloat:   "float",
	KindText:    "text",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Approximate reports whether values of this kind are compared with a
// relative tolerance instead of exact equality.
func (k Kind) Approximate() bool {
	return k == KindFloat || k == KindDecimal
}

// ParseKind maps a type name to a Kind. It accepts the names produced by
// Kind.String plus the common SQL spellings used in typed CSV headers and
// SQLite declared types.
func ParseKind(s string) (Kind, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	switch name {
	case "bool", "boolean":
		return KindBool, true
	case "int", "integer", "int32", "int64", "bigint", "smallint", "tinyint", "long":
		return KindInt, true
	case "decimal", "numeric":
		return KindDecimal, true
	case "float", "double", "real", "float32", "float64", "double precision":
		return KindFloat, true
	case "text", "string", "varchar", "char", "character", "clob":
		return KindText, true
	}
	return KindNull, false
}

// Value is a sealed interface over the scalar types a query result column
// may hold. Only Null, Bool, Int, Decimal, Float and Text implement it.
// Nested types are deliberately absent.
type Value interface {
	Kind() Kind
	String() string
	value()
}

// Null is the SQL NULL of any column type.
type Null struct{}

func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "null" }
func (Null) value()         {}

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind       { return KindBool }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }
func (Bool) value()           {}

// Int is a signed integer value. Narrower integer encodings widen to int64.
type Int int64

func (Int) Kind() Kind       { return KindInt }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }
func (Int) value()           {}

// Float is an IEEE-754 value. Single precision columns widen to float64.
type Float float64

func (Float) Kind() Kind { return KindFloat }

// String formats with the shortest representation that round-trips.
func (f Float) String() string {
	v := float64(f)
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
func (Float) value() {}

// Decimal is a fixed-point value of arbitrary precision.
type Decimal struct {
	decimal.Decimal
}

func (Decimal) Kind() Kind { return KindDecimal }
func (Decimal) value()     {}

// Text is a UTF-8 string value.
type Text string

func (Text) Kind() Kind       { return KindText }
func (t Text) String() string { return string(t) }
func (Text) value()           {}

// NewDecimal wraps a decimal.Decimal.
func NewDecimal(d decimal.Decimal) Decimal {
	return Decimal{Decimal: d}
}

// NewDecimalFromUnscaled builds the decimal unscaled * 10^-scale.
func NewDecimalFromUnscaled(unscaled int64, scale int32) Decimal {
	return Decimal{Decimal: decimal.New(unscaled, -scale)}
}

// MustDecimal parses s and panics on error.
// Use only in tests or with literals known to be valid.
func MustDecimal(s string) Decimal {
	return Decimal{Decimal: decimal.RequireFromString(s)}
}

// Row is a fixed-arity sequence of values aligned to a Schema.
type Row []Value

// Strings renders every value with its String method.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.String()
	}
	return out
}

// String renders the row as a bracketed, comma separated list.
func (r Row) String() string {
	return "[" + strings.Join(r.Strings(), ", ") + "]"
}

// Project returns a new row holding the values at the given positions.
func (r Row) Project(idx []int) Row {
	out := make(Row, len(idx))
	for i, j := range idx {
		out[i] = r[j]
	}
	return out
}

// Column describes one positional column of a dataset.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered column list of a dataset.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Without returns the positions of all columns whose name is not in
// exclude, in schema order. Names absent from the schema are ignored.
func (s Schema) Without(exclude []string) []int {
	drop := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		drop[name] = true
	}
	idx := make([]int, 0, len(s))
	for i, c := range s {
		if !drop[c.Name] {
			idx = append(idx, i)
		}
	}
	return idx
}

// Project returns the sub-schema at the given positions.
func (s Schema) Project(idx []int) Schema {
	out := make(Schema, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

// Equal reports whether both schemas have the same names and kinds in order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}
