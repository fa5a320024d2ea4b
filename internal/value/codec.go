package value

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math"
	"strconv"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// DomainRow prefixes row digests. The version suffix leaves room for a
// future change of the canonical encoding.
const DomainRow = "qvalidate/row/v1"

// Wire tags, one per Kind.
const (
	tagNull    = "n"
	tagBool    = "b"
	tagInt     = "i"
	tagDecimal = "d"
	tagFloat   = "f"
	tagText    = "t"
)

// MarshalRow encodes a row as a JSON array of [tag, text] pairs. The
// encoding round-trips every value exactly through UnmarshalRow.
func MarshalRow(r Row) ([]byte, error) {
	return marshalRow(r, false)
}

// UnmarshalRow decodes a row produced by MarshalRow.
func UnmarshalRow(data []byte) (Row, error) {
	var wire [][2]string
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	row := make(Row, len(wire))
	for i, pair := range wire {
		v, err := decodeWire(pair[0], pair[1])
		if err != nil {
			return nil, fmt.Errorf("unmarshal row: column %d: %w", i, err)
		}
		row[i] = v
	}
	return row, nil
}

// MarshalCanonicalRow produces the canonical encoding of a row: the
// MarshalRow layout with text NFC normalized, decimals without trailing
// zeros and a single NaN spelling. Equal rows always encode identically.
func MarshalCanonicalRow(r Row) ([]byte, error) {
	return marshalRow(r, true)
}

// RowDigest computes SHA256(DomainRow + 0x00 + canonical row).
func RowDigest(r Row) ([]byte, error) {
	canonical, err := MarshalCanonicalRow(r)
	if err != nil {
		return nil, fmt.Errorf("RowDigest: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainRow))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return h.Sum(nil), nil
}

func marshalRow(r Row, canonical bool) ([]byte, error) {
	wire := make([][2]string, len(r))
	for i, v := range r {
		tag, text, err := encodeWire(v, canonical)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		wire[i] = [2]string{tag, text}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func encodeWire(v Value, canonical bool) (string, string, error) {
	switch val := v.(type) {
	case Null:
		return tagNull, "", nil
	case Bool:
		return tagBool, val.String(), nil
	case Int:
		return tagInt, val.String(), nil
	case Decimal:
		return tagDecimal, val.Decimal.String(), nil
	case Float:
		f := float64(val)
		if canonical && f == 0 {
			f = 0 // folds -0 into +0
		}
		return tagFloat, Float(f).String(), nil
	case Text:
		if canonical {
			return tagText, norm.NFC.String(string(val)), nil
		}
		return tagText, string(val), nil
	default:
		return "", "", fmt.Errorf("unsupported value type: %T", v)
	}
}

func decodeWire(tag, text string) (Value, error) {
	switch tag {
	case tagNull:
		return Null{}, nil
	case tagBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case tagInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case tagDecimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, err
		}
		return NewDecimal(d), nil
	case tagFloat:
		if text == "NaN" {
			return Float(math.NaN()), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case tagText:
		return Text(text), nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", tag)
	}
}
