package luasrc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Patch replaces the value of the first top-level assignment to name and
// returns the new text. Every byte outside that value expression is kept.
// When name is not assigned, or already holds v, src is returned unchanged.
func Patch(src, name string, v Value) (string, error) {
	chunk, err := Parse(src)
	if err != nil {
		return "", err
	}
	a, ok := firstAssignment(chunk, name)
	if !ok {
		return src, nil
	}
	return replaceValue(src, a.value, 0, v)
}

// PatchField replaces one entry inside the table literal assigned to
// tableName. key matches a named field, a bracketed string or number key,
// or the 1-based position of a bare value. A missing table, a non-table
// value or a missing key leaves src unchanged.
func PatchField(src, tableName, key string, v Value) (string, error) {
	chunk, err := Parse(src)
	if err != nil {
		return "", err
	}
	field, ok := findField(chunk, tableName, key)
	if !ok {
		return src, nil
	}
	return replaceValue(src, field.Value, 1, v)
}

func replaceValue(src string, e Expr, depth int, v Value) (string, error) {
	if valueOf(src, e, depth).Equal(v) {
		return src, nil
	}
	lit, err := Literal(v)
	if err != nil {
		return "", err
	}
	r := e.Span()
	return src[:r.Start] + lit + src[r.End:], nil
}

// Literal renders v as Lua source. Tables are rejected with ErrTableValue;
// opaque values must already be a single well-formed expression.
func Literal(v Value) (string, error) {
	switch v.Kind {
	case KindNil:
		return "nil", nil
	case KindBoolean:
		return strconv.FormatBool(v.Bool), nil
	case KindNumber:
		return FormatNumber(v.Num), nil
	case KindString:
		return QuoteString(v.Str), nil
	case KindOpaque:
		if err := checkRaw(v.Raw); err != nil {
			return "", err
		}
		return v.Raw, nil
	case KindSequence, KindMapping:
		return "", ErrTableValue
	}
	return "", fmt.Errorf("unknown value kind %d", v.Kind)
}

func checkRaw(raw string) error {
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrInvalidLiteral
	}
	e, err := ParseExpression(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLiteral, err)
	}
	// 前后注释也不允许
	if e.Span() != (Range{Start: 0, End: len(raw)}) {
		return ErrInvalidLiteral
	}
	return nil
}

// FormatNumber renders f the shortest way Lua reads back as the same
// number. Integral values print without a fraction or exponent.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "0/0"
	case math.IsInf(f, 1):
		return "math.huge"
	case math.IsInf(f, -1):
		return "-math.huge"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		if f == 0 && math.Signbit(f) {
			return "0"
		}
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// QuoteString renders s as a double-quoted Lua string literal.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03d`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
