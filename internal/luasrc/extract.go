package luasrc

import "strconv"

// maxTableDepth is how many table levels are interpreted. Tables nested
// deeper come back as opaque source text.
const maxTableDepth = 1

// Extract returns the value of every top-level "name = expr" assignment in
// src. A later assignment to the same name replaces an earlier one.
func Extract(src string) (map[string]Value, error) {
	chunk, err := Parse(src)
	if err != nil {
		return nil, err
	}
	values := make(map[string]Value)
	for _, a := range topLevelAssignments(chunk) {
		values[a.name.Name] = valueOf(src, a.value, 0)
	}
	return values, nil
}

func valueOf(src string, e Expr, depth int) Value {
	if f, ok := numberOf(e); ok {
		return Number(f)
	}
	switch x := e.(type) {
	case *StringExpr:
		return String(x.Value)
	case *BoolExpr:
		return Bool(x.Value)
	case *NilExpr:
		return Nil()
	case *TableExpr:
		if depth < maxTableDepth {
			return tableValue(src, x, depth)
		}
	}
	return Raw(e.Span().Text(src))
}

// numberOf folds numeric literals and their negations.
func numberOf(e Expr) (float64, bool) {
	switch x := e.(type) {
	case *NumberExpr:
		return x.Value, true
	case *UnaryExpr:
		if x.Op == "-" {
			if f, ok := numberOf(x.Operand); ok {
				return -f, true
			}
		}
	}
	return 0, false
}

// isSequence reports whether every field is a bare value or a bracketed
// numeric key equal to its own 1-based position. Any other key makes the
// table a mapping.
func isSequence(fields []*Field) bool {
	for i, f := range fields {
		switch f.Kind {
		case FieldPositional:
			continue
		case FieldBracket:
			if n, ok := numberOf(f.Key); ok && n == float64(i+1) {
				continue
			}
		}
		return false
	}
	return true
}

func tableValue(src string, t *TableExpr, depth int) Value {
	if isSequence(t.Fields) {
		seq := make([]Value, len(t.Fields))
		for i, f := range t.Fields {
			seq[i] = valueOf(src, f.Value, depth+1)
		}
		return Sequence(seq...)
	}

	m := make(map[string]Value, len(t.Fields))
	for i, key := range fieldKeys(t) {
		if key == "" {
			continue
		}
		m[key] = valueOf(src, t.Fields[i].Value, depth+1)
	}
	return Mapping(m)
}

// fieldKeys returns the string key each field is stored under, "" when the
// key is not a literal string or number. Bare values take their implicit
// 1-based position among bare values.
func fieldKeys(t *TableExpr) []string {
	keys := make([]string, len(t.Fields))
	position := 0
	for i, f := range t.Fields {
		switch f.Kind {
		case FieldPositional:
			position++
			keys[i] = strconv.Itoa(position)
		case FieldNamed:
			keys[i] = f.Name
		case FieldBracket:
			if s, ok := f.Key.(*StringExpr); ok {
				keys[i] = s.Value
			} else if n, ok := numberOf(f.Key); ok {
				keys[i] = FormatNumber(n)
			}
		}
	}
	return keys
}
